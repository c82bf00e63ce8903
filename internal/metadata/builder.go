package metadata

import (
	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
	"tablequery/internal/domain/relation"
	"tablequery/internal/domain/tablequery"
)

// Builder returns a query builder over the named table with its field whitelist,
// default order and default relations applied. extra specs are attached after
// the table's own include list.
func (r *Registry) Builder(table string, extra []relation.Spec, opts ...tablequery.Option) (*tablequery.Builder, error) {
	def, ok := r.Get(table)
	if !ok {
		return nil, apperror.NewNotFound("table", table)
	}

	opts = append([]tablequery.Option{tablequery.WithDefaultOrder(def.CreatedAt)}, opts...)
	b := tablequery.New(query.New(def.Name), r, opts...).SetFields(def.Fields...)

	specs := append(def.Specs(), extra...)
	if err := b.SetRelations(specs...); err != nil {
		return nil, err
	}
	return b, nil
}
