package dto

import (
	"tablequery/internal/core/apperror"
	"tablequery/internal/domain/filter"
	"tablequery/internal/domain/relation"
	"tablequery/internal/domain/tablequery"
)

// TableQueryRequest carries the query-string form of an options bag.
// Explicit parameters override the values decoded from Options.
type TableQueryRequest struct {
	// Options is a base64 JSON options bag.
	Options    string `form:"options"`
	Query      string `form:"query"`
	QueryStart string `form:"queryStart"`
	QueryEnd   string `form:"queryEnd"`
	ByColumn   string `form:"byColumn"`
	OrderBy    string `form:"orderBy"`
	Ascending  string `form:"ascending"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	Limit      int    `form:"limit" binding:"omitempty,min=1"`
	// Filters is a base64 (optionally zstd) filters payload.
	Filters string `form:"filters"`
	// Filter holds DSL filters, one per parameter ("age;gte;21").
	Filter    []string `form:"filter"`
	Delimiter string   `form:"delimiter"`
	// Include adds relation specs to the table's defaults.
	Include []string `form:"include"`
}

// ToOptions builds the options bag.
func (r TableQueryRequest) ToOptions() (tablequery.Options, error) {
	opts, err := tablequery.DecodeOptions(r.Options)
	if err != nil {
		return opts, err
	}

	switch {
	case r.QueryStart != "" || r.QueryEnd != "":
		opts.Search = tablequery.DateRange(r.QueryStart, r.QueryEnd)
	case r.Query != "":
		opts.Search = tablequery.Text(r.Query)
	}

	if r.ByColumn != "" {
		opts.SearchColumn = r.ByColumn
	}
	if r.OrderBy != "" {
		opts.OrderBy = r.OrderBy
	}
	if r.Ascending != "" {
		asc, err := tablequery.ParseFlag(r.Ascending)
		if err != nil {
			return opts, err
		}
		opts.Ascending = asc
	}
	if r.Page > 0 {
		opts.Page = r.Page
	}
	if r.Limit > 0 {
		opts.Limit = r.Limit
	}
	if r.Filters != "" {
		opts.EncodedFilters = r.Filters
	}
	if r.Delimiter != "" {
		opts.Delimiter = r.Delimiter
	}
	for _, f := range r.Filter {
		opts.Filters = append(opts.Filters, filter.Spec(f))
	}

	return opts, nil
}

// CompileRequest is the body of the compile endpoint.
type CompileRequest struct {
	Options tablequery.Options `json:"options"`
	Include []string           `json:"include,omitempty"`
}

// CompileResponse shows the statements a request compiles to.
type CompileResponse struct {
	SQL         string               `json:"sql"`
	Args        []any                `json:"args"`
	CountSQL    string               `json:"countSql"`
	CountArgs   []any                `json:"countArgs"`
	Page        int                  `json:"page"`
	Limit       int                  `json:"limit"`
	Diagnostics []*apperror.AppError `json:"diagnostics,omitempty"`
}

// TableListResponse is a page of rows.
type TableListResponse struct {
	Items       []map[string]any     `json:"items"`
	Pagination  PaginationResponse   `json:"pagination"`
	Diagnostics []*apperror.AppError `json:"diagnostics,omitempty"`
}

// RelationSpecs converts include expressions into relation specs.
func RelationSpecs(include []string) []relation.Spec {
	if len(include) == 0 {
		return nil
	}
	specs := make([]relation.Spec, len(include))
	for i, expr := range include {
		specs[i] = relation.Expr(expr)
	}
	return specs
}
