// Package tablequery composes a base query with relations, deferred sub-queries,
// free-text search, structured filters, ordering and pagination.
//
// A Builder is created per request and is not safe for concurrent use.
package tablequery

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
	"tablequery/internal/domain/filter"
	"tablequery/internal/domain/relation"
	"tablequery/pkg/logger"
)

var tracer = otel.Tracer("tablequery/compose")

const (
	// DefaultLimit is the page size when neither the caller nor the options set one.
	DefaultLimit = 10

	// DateLayout is the format of date range search bounds.
	DateLayout = "2006-01-02"

	defaultOrderColumn = "created_at"
)

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(l *logger.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithLocation sets the calendar used for date range search. Default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(b *Builder) {
		if loc != nil {
			b.location = loc
		}
	}
}

// WithDefaultOrder sets the column sorted on when the options name none.
// An unqualified column is qualified with the base table.
func WithDefaultOrder(column string) Option {
	return func(b *Builder) {
		b.defaultOrder = strings.TrimSpace(column)
	}
}

// Builder is the query orchestrator.
type Builder struct {
	base   query.Query
	schema relation.Schema

	opts       Options
	fields     []string
	relations  []relation.Descriptor
	subQueries []func(query.Query) query.Query

	diagnostics []*apperror.AppError
	fieldsErr   error
	compiled    query.Query

	logger       *logger.Logger
	location     *time.Location
	defaultOrder string
}

// New creates a Builder over base. schema resolves relation specs and may be nil
// when no relations are set.
func New(base query.Query, schema relation.Schema, opts ...Option) *Builder {
	b := &Builder{
		base:     base,
		schema:   schema,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetOptions replaces the options bag.
func (b *Builder) SetOptions(opts Options) *Builder {
	b.opts = opts
	b.compiled = nil
	return b
}

// Options returns the options bag, with filters decoded if Compose already ran.
func (b *Builder) Options() Options {
	return b.opts
}

// SetFields sets the whitelist of base-table columns eligible for search and
// qualification. An invalid column name fails the next Compose.
func (b *Builder) SetFields(fields ...string) *Builder {
	b.fields = b.fields[:0]
	b.fieldsErr = nil
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if !filter.IsIdentifier(f) || strings.Contains(f, ".") {
			b.fieldsErr = apperror.NewValidation("invalid searchable field").WithDetail("field", f)
			continue
		}
		b.fields = append(b.fields, f)
	}
	b.compiled = nil
	return b
}

// Fields returns the field whitelist.
func (b *Builder) Fields() []string {
	return slices.Clone(b.fields)
}

// SetRelations resolves specs against the schema and replaces the relation list.
// On error the previous list is kept.
func (b *Builder) SetRelations(specs ...relation.Spec) error {
	if len(specs) > 0 && b.schema == nil {
		return apperror.NewValidation("relations require a schema")
	}

	resolved := make([]relation.Descriptor, 0, len(specs))
	var diagnostics []*apperror.AppError

	for _, spec := range specs {
		d, err := relation.Resolve(spec, b.base.Table(), b.schema)
		if err != nil {
			return err
		}
		if diag := d.FallbackError(); diag != nil {
			diagnostics = append(diagnostics, diag)
			b.log(context.Background()).Warnw("relation cardinality not supported, using left join",
				"relation", d.Name,
				"cardinality", diag.Details["cardinality"],
				"related_table", d.Table,
			)
		}
		resolved = append(resolved, d)
	}

	b.relations = resolved
	b.diagnostics = diagnostics
	b.compiled = nil
	return nil
}

// Relations returns the resolved relations in attachment order.
func (b *Builder) Relations() []relation.Descriptor {
	return slices.Clone(b.relations)
}

// Diagnostics returns the non-fatal notices collected while resolving relations.
func (b *Builder) Diagnostics() []*apperror.AppError {
	return slices.Clone(b.diagnostics)
}

// AddSubQuery registers a query mutation run after relations are attached.
func (b *Builder) AddSubQuery(fn func(q query.Query) query.Query) *Builder {
	if fn != nil {
		b.subQueries = append(b.subQueries, fn)
		b.compiled = nil
	}
	return b
}

// Compose builds the query: relations, sub-queries, search, filters, ordering.
// It always starts from the base handle, so repeated calls yield the same query.
func (b *Builder) Compose(ctx context.Context) (query.Query, error) {
	ctx, span := tracer.Start(ctx, "tablequery.compose",
		trace.WithAttributes(
			attribute.String("tablequery.table", b.base.Table()),
			attribute.Int("tablequery.relations", len(b.relations)),
		))
	defer span.End()

	q, err := b.compose(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	b.compiled = q
	return q, nil
}

func (b *Builder) compose(ctx context.Context) (query.Query, error) {
	if b.fieldsErr != nil {
		return nil, b.fieldsErr
	}

	opts, err := b.opts.decoded()
	if err != nil {
		return nil, err
	}
	b.opts = opts

	log := b.log(ctx)
	q := b.base

	if q, err = b.attachRelations(q); err != nil {
		return nil, err
	}

	for _, fn := range b.subQueries {
		if next := fn(q); next != nil {
			q = next
		}
	}

	if q, err = b.applySearch(q, opts); err != nil {
		return nil, err
	}

	if q, err = b.applyFilters(q, opts); err != nil {
		return nil, err
	}

	if q, err = b.applyOrder(q, opts); err != nil {
		return nil, err
	}

	log.Debugw("query composed",
		"relations", len(b.relations),
		"sub_queries", len(b.subQueries),
		"filters", len(opts.Filters),
		"search", !opts.Search.IsZero(),
	)
	return q, nil
}

func (b *Builder) attachRelations(q query.Query) (query.Query, error) {
	if len(b.relations) == 0 {
		return q, nil
	}
	if !q.Projected() {
		q = q.Select(b.base.Table() + ".*")
	}

	var err error
	for _, d := range b.relations {
		if q, err = d.Attach(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (b *Builder) applyFilters(q query.Query, opts Options) (query.Query, error) {
	var err error
	for _, f := range opts.Filters {
		switch v := f.(type) {
		case filter.Spec:
			d, perr := filter.Parse(string(v), opts.FilterDelimiter())
			if perr != nil {
				return nil, perr
			}
			q, err = b.applyDescriptor(q, d)
		case filter.Descriptor:
			q, err = b.applyDescriptor(q, v)
		case nil:
			continue
		default:
			q, err = f.ToQuery(q)
		}
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (b *Builder) applyDescriptor(q query.Query, d filter.Descriptor) (query.Query, error) {
	column, err := b.qualify(d.Column)
	if err != nil {
		return nil, err
	}
	return d.WithColumn(column).ToQuery(q)
}

func (b *Builder) applyOrder(q query.Query, opts Options) (query.Query, error) {
	dir := query.Desc
	if opts.Ascending {
		dir = query.Asc
	}

	column := strings.TrimSpace(opts.OrderBy)
	if column == "" {
		return q.OrderBy(b.defaultOrderColumn(), dir), nil
	}

	if field, ok := b.field(column); ok {
		return q.OrderBy(b.base.Table()+"."+field, dir), nil
	}
	if d, ok := b.relationByAlias(column); ok {
		return q.OrderBy(d.Alias, dir), nil
	}
	if !filter.IsIdentifier(column) {
		return nil, apperror.NewValidation("invalid order column").WithDetail("orderBy", column)
	}
	return q.OrderBy(column, dir), nil
}

func (b *Builder) defaultOrderColumn() string {
	column := b.defaultOrder
	if column == "" {
		column = defaultOrderColumn
	}
	if strings.Contains(column, ".") {
		return column
	}
	return b.base.Table() + "." + column
}

// ResolvePage returns the page and limit in effect. Explicit positive arguments
// win over the options; the defaults are page 1 and DefaultLimit.
func (b *Builder) ResolvePage(page, limit int) (int, int) {
	if page <= 0 {
		page = b.opts.Page
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = b.opts.Limit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return page, limit
}

// Paginate applies limit and offset = limit * (page - 1) to the composed query,
// composing first if needed. Zero arguments fall back to the options and defaults.
func (b *Builder) Paginate(ctx context.Context, page, limit int) (query.Query, error) {
	ctx, span := tracer.Start(ctx, "tablequery.paginate")
	defer span.End()

	q := b.compiled
	if q == nil {
		var err error
		if q, err = b.Compose(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	page, limit = b.ResolvePage(page, limit)
	if page-1 > math.MaxInt64/limit {
		err := apperror.NewValidation("page is out of range").
			WithDetail("page", page).
			WithDetail("limit", limit)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	offset := limit * (page - 1)
	span.SetAttributes(
		attribute.Int("tablequery.page", page),
		attribute.Int("tablequery.limit", limit),
	)

	return q.Limit(uint64(limit)).Offset(uint64(offset)), nil
}

func (b *Builder) log(ctx context.Context) *logger.Logger {
	l := b.logger
	if l == nil {
		return logger.FromContext(ctx).ForTable(b.base.Table())
	}
	return l.WithContext(ctx).ForTable(b.base.Table())
}
