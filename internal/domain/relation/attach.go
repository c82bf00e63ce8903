package relation

import (
	"fmt"
	"slices"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
)

// Strategy is how a relation is attached to its parent query.
type Strategy int

const (
	// StrategyJoin projects the column over a single LEFT JOIN of the related table.
	StrategyJoin Strategy = iota
	// StrategySubselect projects a correlated scalar sub-select, avoiding row duplication.
	StrategySubselect
)

func (s Strategy) String() string {
	if s == StrategySubselect {
		return "subselect"
	}
	return "join"
}

// Descriptor is a resolved relation.
type Descriptor struct {
	Spec        string
	Name        string
	Column      Column
	Alias       string
	Cardinality Cardinality
	Tag         string
	Parent      string
	Table       string
	ForeignKey  string
	PrimaryKey  string
}

// Strategy selects the attachment strategy: has-many relations become
// correlated sub-selects, everything else a left join.
func (d Descriptor) Strategy() Strategy {
	if d.Cardinality == HasMany {
		return StrategySubselect
	}
	return StrategyJoin
}

// Fallback reports whether the join strategy was chosen for a cardinality
// that is neither has-many nor belongs-to.
func (d Descriptor) Fallback() bool {
	return d.Cardinality != HasMany && d.Cardinality != BelongsTo
}

// FallbackError describes the fallback as a diagnostic. It is nil when Fallback is false.
func (d Descriptor) FallbackError() *apperror.AppError {
	if !d.Fallback() {
		return nil
	}
	tag := d.Tag
	if tag == "" {
		tag = string(d.Cardinality)
	}
	return apperror.NewUnsupportedCardinality(d.Name, tag)
}

// JoinedColumn returns "table.column" for a literal column reachable through a join.
// Sub-selected and computed columns have no joined column.
func (d Descriptor) JoinedColumn() (string, bool) {
	col, ok := d.Column.(Literal)
	if !ok || d.Strategy() != StrategyJoin {
		return "", false
	}
	return d.Table + "." + string(col), true
}

// Attach adds the relation's projection to q and returns the new handle.
func (d Descriptor) Attach(q query.Query) (query.Query, error) {
	if d.Strategy() == StrategySubselect {
		return d.attachSubselect(q)
	}
	return d.attachJoin(q)
}

func (d Descriptor) attachJoin(q query.Query) (query.Query, error) {
	switch col := d.Column.(type) {
	case Literal:
		q = q.AddColumn(fmt.Sprintf("%s.%s AS %s", d.Table, col, d.Alias))
	case RawExpression:
		q = q.AddRawColumn(fmt.Sprintf("%s AS %s", col, d.Alias))
	case Projection:
		sub, err := d.project(q, col)
		if err != nil {
			return q, err
		}
		return q.AddSubselect(sub, d.Alias), nil
	default:
		return q, fmt.Errorf("relation %s: unsupported column %T", d.Name, d.Column)
	}

	if slices.Contains(q.JoinedTables(), d.Table) {
		return q, nil
	}
	return q.LeftJoin(
		d.Table,
		d.Parent+"."+d.ForeignKey,
		"=",
		d.Table+"."+d.PrimaryKey,
	), nil
}

// attachSubselect projects a scalar sub-select. A has-many relation matches any
// number of rows, so literal and raw columns are capped at one row.
func (d Descriptor) attachSubselect(q query.Query) (query.Query, error) {
	sub := d.correlated(q)

	switch col := d.Column.(type) {
	case Literal:
		sub = sub.Select(d.Table + "." + string(col)).Limit(1)
	case RawExpression:
		sub = sub.Select(string(col)).Limit(1)
	case Projection:
		shaped, err := d.project(q, col)
		if err != nil {
			return q, err
		}
		sub = shaped
	default:
		return q, fmt.Errorf("relation %s: unsupported column %T", d.Name, d.Column)
	}

	return q.AddSubselect(sub, d.Alias), nil
}

// correlated returns a sub-query over the related table filtered to the outer row.
func (d Descriptor) correlated(q query.Query) query.Query {
	sub := q.Subquery(d.Table)
	if d.Strategy() == StrategySubselect {
		return sub.Where(fmt.Sprintf("%s.%s = %s.%s", d.Table, d.ForeignKey, d.Parent, d.PrimaryKey))
	}
	return sub.Where(fmt.Sprintf("%s.%s = %s.%s", d.Table, d.PrimaryKey, d.Parent, d.ForeignKey))
}

// project hands a correlated, single-row sub-query to a Projection.
func (d Descriptor) project(q query.Query, fn Projection) (query.Query, error) {
	sub := fn(d.correlated(q).Limit(1))
	if sub == nil {
		return nil, apperror.NewMalformedRelationSpec(d.Spec).
			WithDetail("reason", "callback returned no query")
	}
	return sub, nil
}
