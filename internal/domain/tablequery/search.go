package tablequery

import (
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
	"tablequery/internal/domain/relation"
)

func (b *Builder) applySearch(q query.Query, opts Options) (query.Query, error) {
	search := opts.Search
	if search.IsZero() {
		return q, nil
	}

	if opts.SearchColumn != "" {
		column, ok := b.searchColumn(opts.SearchColumn)
		if !ok {
			return nil, apperror.NewValidation("column is not searchable").
				WithDetail("byColumn", opts.SearchColumn)
		}

		if search.IsRange() {
			start, end, err := b.dayRange(search)
			if err != nil {
				return nil, err
			}
			return q.WhereRange(column, start, end), nil
		}
		return q.WhereAny(contains(column, search.Text)), nil
	}

	if search.IsRange() {
		return nil, apperror.NewValidation("date range search requires byColumn")
	}

	columns := b.searchableColumns()
	preds := make([]squirrel.Sqlizer, 0, len(columns))
	for _, column := range columns {
		preds = append(preds, contains(column, search.Text))
	}
	return q.WhereAny(preds...), nil
}

// contains matches column against %text% case-insensitively. The column is cast so
// non-text columns can be searched too.
func contains(column, text string) squirrel.Sqlizer {
	return squirrel.Expr(column+"::text ILIKE ?", "%"+text+"%")
}

// dayRange turns YYYY-MM-DD bounds into [start 00:00:00, end 23:59:59] in b.location.
func (b *Builder) dayRange(s Search) (time.Time, time.Time, error) {
	if s.Start == "" || s.End == "" {
		return time.Time{}, time.Time{}, apperror.NewValidation("date range requires start and end").
			WithDetail("start", s.Start).
			WithDetail("end", s.End)
	}

	start, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s.Start), b.location)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.NewValidation("invalid range start, expected YYYY-MM-DD").
			WithDetail("start", s.Start).
			WithCause(err)
	}

	end, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s.End), b.location)
	if err != nil {
		return time.Time{}, time.Time{}, apperror.NewValidation("invalid range end, expected YYYY-MM-DD").
			WithDetail("end", s.End).
			WithCause(err)
	}
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, b.location)

	return start, end, nil
}

// searchableColumns lists whitelisted base columns followed by joined relation columns.
func (b *Builder) searchableColumns() []string {
	table := b.base.Table()
	columns := make([]string, 0, len(b.fields)+len(b.relations))
	for _, f := range b.fields {
		columns = append(columns, table+"."+f)
	}
	for _, d := range b.relations {
		if column, ok := d.JoinedColumn(); ok {
			columns = append(columns, column)
		}
	}
	return columns
}

// searchColumn resolves byColumn against the whitelist, then against joined relations
// by alias or "table.column".
func (b *Builder) searchColumn(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if field, ok := b.field(name); ok {
		return b.base.Table() + "." + field, true
	}
	for _, d := range b.relations {
		column, ok := d.JoinedColumn()
		if !ok {
			continue
		}
		if strings.EqualFold(d.Alias, name) || strings.EqualFold(column, name) {
			return column, true
		}
	}
	return "", false
}

// qualify rewrites a bare whitelisted column as "<base>.<column>" and a joined
// relation alias as its joined column. Aliases of sub-selects and computed
// columns exist only in the projection and cannot be filtered on.
func (b *Builder) qualify(column string) (string, error) {
	if strings.Contains(column, ".") {
		return column, nil
	}
	if field, ok := b.field(column); ok {
		return b.base.Table() + "." + field, nil
	}
	if d, ok := b.relationByAlias(column); ok {
		joined, ok := d.JoinedColumn()
		if !ok {
			return "", apperror.NewValidation("cannot filter on a computed relation column").
				WithDetail("column", column).
				WithDetail("relation", d.Name)
		}
		return joined, nil
	}
	return column, nil
}

// field finds name in the whitelist, case-insensitively. A "<base>." prefix is accepted.
func (b *Builder) field(name string) (string, bool) {
	if prefix, rest, ok := strings.Cut(name, "."); ok {
		if !strings.EqualFold(prefix, b.base.Table()) {
			return "", false
		}
		name = rest
	}
	for _, f := range b.fields {
		if strings.EqualFold(f, name) {
			return f, true
		}
	}
	return "", false
}

func (b *Builder) relationByAlias(alias string) (relation.Descriptor, bool) {
	for _, d := range b.relations {
		if strings.EqualFold(d.Alias, alias) {
			return d, true
		}
	}
	return relation.Descriptor{}, false
}
