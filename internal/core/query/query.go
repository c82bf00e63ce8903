// Package query defines the relational query backend that the table query compiler
// writes into, together with its squirrel-based implementation.
//
// A Query is a handle: every mutating method returns the handle that must be used
// from then on. The squirrel implementation is a value type, so earlier handles are
// never affected by later calls.
package query

import (
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Query is the backend contract consumed by the filter, relation and tablequery packages.
type Query interface {
	squirrel.Sqlizer

	// Table returns the table the query selects from.
	Table() string

	// Projected reports whether an explicit projection was set.
	Projected() bool

	// Select replaces the projection.
	Select(columns ...string) Query

	// AddColumn appends a column (optionally "expr AS alias") to the projection.
	AddColumn(column string) Query

	// AddRawColumn appends a raw SQL fragment with its arguments to the projection.
	AddRawColumn(expr string, args ...any) Query

	// AddSubselect appends "(sub) AS alias" to the projection.
	AddSubselect(sub Query, alias string) Query

	// Where AND-combines a predicate. pred is a string or a squirrel.Sqlizer.
	Where(pred any, args ...any) Query

	// WhereAny AND-combines one parenthesised OR group of predicates.
	WhereAny(preds ...squirrel.Sqlizer) Query

	// WhereRange AND-combines "column BETWEEN start AND end".
	WhereRange(column string, start, end any) Query

	// LeftJoin adds "LEFT JOIN table ON left op right".
	LeftJoin(table, leftColumn, operator, rightColumn string) Query

	// JoinedTables lists tables joined so far, in join order.
	JoinedTables() []string

	// Subquery starts a query over table suitable for nesting inside this one.
	Subquery(table string) Query

	// OrderBy appends a sort clause.
	OrderBy(column string, dir Direction) Query

	Limit(n uint64) Query
	Offset(n uint64) Query

	// Count renders "SELECT COUNT(*) FROM (query) AS sub" without limit and offset.
	Count() squirrel.Sqlizer
}

// Select is the squirrel-backed Query.
type Select struct {
	table      string
	format     squirrel.PlaceholderFormat
	builder    squirrel.SelectBuilder
	projection int
	joins      []string
}

var _ Query = Select{}

// New starts a PostgreSQL ($n placeholders) query over table.
func New(table string) Query {
	return NewWithFormat(table, squirrel.Dollar)
}

// NewWithFormat starts a query over table using the given placeholder format.
func NewWithFormat(table string, format squirrel.PlaceholderFormat) Query {
	return Select{
		table:   table,
		format:  format,
		builder: squirrel.StatementBuilder.PlaceholderFormat(format).Select().From(table),
	}
}

func (s Select) Table() string {
	return s.table
}

func (s Select) Projected() bool {
	return s.projection > 0
}

func (s Select) Select(columns ...string) Query {
	s.builder = s.builder.RemoveColumns().Columns(columns...)
	s.projection = len(columns)
	return s
}

func (s Select) AddColumn(column string) Query {
	s.builder = s.builder.Columns(column)
	s.projection++
	return s
}

func (s Select) AddRawColumn(expr string, args ...any) Query {
	s.builder = s.builder.Column(expr, args...)
	s.projection++
	return s
}

func (s Select) AddSubselect(sub Query, alias string) Query {
	s.builder = s.builder.Column(squirrel.Alias(sub, alias))
	s.projection++
	return s
}

func (s Select) Where(pred any, args ...any) Query {
	s.builder = s.builder.Where(pred, args...)
	return s
}

func (s Select) WhereAny(preds ...squirrel.Sqlizer) Query {
	if len(preds) == 0 {
		return s
	}
	s.builder = s.builder.Where(squirrel.Or(preds))
	return s
}

func (s Select) WhereRange(column string, start, end any) Query {
	s.builder = s.builder.Where(squirrel.Expr(column+" BETWEEN ? AND ?", start, end))
	return s
}

func (s Select) LeftJoin(table, leftColumn, operator, rightColumn string) Query {
	s.builder = s.builder.LeftJoin(fmt.Sprintf("%s ON %s %s %s", table, leftColumn, operator, rightColumn))
	s.joins = append(slices.Clip(s.joins), table)
	return s
}

func (s Select) JoinedTables() []string {
	return slices.Clone(s.joins)
}

// Subquery uses "?" placeholders: the enclosing query renumbers them when it renders.
func (s Select) Subquery(table string) Query {
	return NewWithFormat(table, squirrel.Question)
}

func (s Select) OrderBy(column string, dir Direction) Query {
	s.builder = s.builder.OrderBy(column + " " + string(dir))
	return s
}

func (s Select) Limit(n uint64) Query {
	s.builder = s.builder.Limit(n)
	return s
}

func (s Select) Offset(n uint64) Query {
	s.builder = s.builder.Offset(n)
	return s
}

func (s Select) Count() squirrel.Sqlizer {
	inner := s.builder.RemoveLimit().RemoveOffset()
	if s.projection == 0 {
		inner = inner.Columns("*")
	}
	return squirrel.StatementBuilder.
		PlaceholderFormat(s.format).
		Select("COUNT(*)").
		FromSelect(inner, "sub")
}

// ToSql renders the query. A query without projection selects "*".
func (s Select) ToSql() (string, []any, error) {
	b := s.builder
	if s.projection == 0 {
		b = b.Columns("*")
	}
	return b.ToSql()
}
