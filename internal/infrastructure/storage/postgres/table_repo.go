package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
	"tablequery/pkg/logger"
)

// pgQueryCanceled is SQLSTATE query_canceled, raised when statement_timeout fires.
const pgQueryCanceled = "57014"

// Rows is a page of generically scanned rows.
type Rows []map[string]any

// Page is a page of rows with the total row count before pagination.
type Page struct {
	Items      Rows
	TotalCount int64
}

// TableRepo executes compiled queries.
type TableRepo struct {
	txm *TxManager
}

func NewTableRepo(txm *TxManager) *TableRepo {
	return &TableRepo{txm: txm}
}

// List counts the rows matched by q and fetches the paginated query, both inside
// one read-only transaction so they see the same snapshot.
func (r *TableRepo) List(ctx context.Context, q, paginated query.Query) (Page, error) {
	ctx, span := tracer.Start(ctx, "postgres.table_repo.list",
		trace.WithAttributes(attribute.String("db.table", q.Table())))
	defer span.End()

	var page Page
	err := r.txm.ReadOnly(ctx, func(ctx context.Context) error {
		total, err := r.Count(ctx, q)
		if err != nil {
			return err
		}

		items, err := r.Select(ctx, paginated)
		if err != nil {
			return err
		}

		page = Page{Items: items, TotalCount: total}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Page{}, err
	}

	span.SetAttributes(
		attribute.Int64("db.total_count", page.TotalCount),
		attribute.Int("db.rows", len(page.Items)),
	)
	return page, nil
}

// Count returns the number of rows matched by q, ignoring its limit and offset.
func (r *TableRepo) Count(ctx context.Context, q query.Query) (int64, error) {
	sql, args, err := q.Count().ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	logger.FromContext(ctx).ForTable(q.Table()).Statement("count", sql, args)

	var total int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, mapQueryError(ctx, "count", sql, err)
	}
	return total, nil
}

// Select runs q and scans every row into a column-name keyed map.
func (r *TableRepo) Select(ctx context.Context, q query.Query) (Rows, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	logger.FromContext(ctx).ForTable(q.Table()).Statement("select", sql, args)

	items := make(Rows, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, mapQueryError(ctx, "select", sql, err)
	}
	return items, nil
}

// Ping checks database connectivity.
func (r *TableRepo) Ping(ctx context.Context) error {
	return r.txm.Ping(ctx)
}

// mapQueryError converts timeouts into apperror timeouts and anything else into a
// database error carrying the failing statement.
func mapQueryError(ctx context.Context, op, sql string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &pgErr) && pgErr.Code == pgQueryCanceled:
		return apperror.NewTimeout(fmt.Errorf("%s: %w", op, err))
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Error(ctx, "table query failed", "op", op, "sql", sql, "error", err)
	return apperror.NewDatabase(fmt.Errorf("%s: %w", op, err)).WithDetail("op", op)
}
