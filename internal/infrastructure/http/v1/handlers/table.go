package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
	"tablequery/internal/domain/tablequery"
	"tablequery/internal/infrastructure/http/v1/dto"
	"tablequery/internal/infrastructure/storage/postgres"
	"tablequery/internal/metadata"
)

// MaxLimit caps the page size a request may ask for.
const MaxLimit = 1000

// TableReader executes compiled queries.
type TableReader interface {
	List(ctx context.Context, q, paginated query.Query) (postgres.Page, error)
}

// TableHandler compiles options bags into queries over registered tables.
type TableHandler struct {
	*BaseHandler
	registry *metadata.Registry
	repo     TableReader
	location *time.Location
}

// NewTableHandler creates a table handler. repo may be nil, in which case only
// the compile endpoint is served.
func NewTableHandler(base *BaseHandler, registry *metadata.Registry, repo TableReader, location *time.Location) *TableHandler {
	if location == nil {
		location = time.Local
	}
	return &TableHandler{
		BaseHandler: base,
		registry:    registry,
		repo:        repo,
		location:    location,
	}
}

func (h *TableHandler) compile(ctx context.Context, table string, opts tablequery.Options, include []string) (tablequery.Compiled, error) {
	b, err := h.registry.Builder(table, dto.RelationSpecs(include), tablequery.WithLocation(h.location))
	if err != nil {
		return tablequery.Compiled{}, err
	}
	return b.SetOptions(opts).Compile(ctx, MaxLimit)
}

// List compiles the query-string options and returns a page of rows.
// GET /api/v1/tables/:table
func (h *TableHandler) List(c *gin.Context) {
	if h.repo == nil {
		h.Error(c, apperror.NewNotFound("route", c.FullPath()).WithDetail("reason", "no database configured"))
		return
	}

	var req dto.TableQueryRequest
	if !h.BindQuery(c, &req) {
		return
	}

	opts, err := req.ToOptions()
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	result, err := h.compile(ctx, c.Param("table"), opts, req.Include)
	if err != nil {
		h.Error(c, err)
		return
	}

	page, err := h.repo.List(ctx, result.Query, result.Paginated)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.TableListResponse{
		Items:       page.Items,
		Pagination:  dto.NewPaginationResponse(result.Page, result.Limit, page.TotalCount),
		Diagnostics: result.Diagnostics,
	})
}

// Compile returns the SQL an options bag compiles to without executing it.
// POST /api/v1/tables/:table/compile
func (h *TableHandler) Compile(c *gin.Context) {
	var req dto.CompileRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}

	result, err := h.compile(c.Request.Context(), c.Param("table"), req.Options, req.Include)
	if err != nil {
		h.Error(c, err)
		return
	}

	sql, args, err := result.Paginated.ToSql()
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	countSQL, countArgs, err := result.Query.Count().ToSql()
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	h.OK(c, dto.CompileResponse{
		SQL:         sql,
		Args:        nonNil(args),
		CountSQL:    countSQL,
		CountArgs:   nonNil(countArgs),
		Page:        result.Page,
		Limit:       result.Limit,
		Diagnostics: result.Diagnostics,
	})
}

func nonNil(args []any) []any {
	if args == nil {
		return []any{}
	}
	return args
}
