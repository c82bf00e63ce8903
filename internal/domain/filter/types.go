// Package filter implements the filter DSL: parsing of delimited filter strings
// ("age;gte;21"), structured filter descriptors and their translation into
// predicates on a query.Query.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
)

// DefaultDelimiter separates filter DSL segments unless the caller overrides it.
const DefaultDelimiter = ";"

// identifierPattern matches a column optionally qualified once with its table.
var identifierPattern = regexp.MustCompile(`(?i)^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// IsIdentifier reports whether s can be emitted unescaped as a column reference.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Filter is anything that can contribute a predicate to a query.
type Filter interface {
	ToQuery(q query.Query) (query.Query, error)
}

// Range is the value of a between filter.
type Range struct {
	Start any `json:"start"`
	End   any `json:"end"`
}

// Descriptor is a parsed, operator-checked filter.
type Descriptor struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Kind returns the value shape of the descriptor's operator.
func (d Descriptor) Kind() Kind {
	return d.Operator.Kind()
}

// String renders the descriptor in DSL form.
func (d Descriptor) String() string {
	if r, ok := d.Value.(Range); ok {
		return fmt.Sprintf("%s;%s;%v;%v", d.Column, d.Operator, r.Start, r.End)
	}
	return fmt.Sprintf("%s;%s;%v", d.Column, d.Operator, d.Value)
}

// Validate checks the column and that the value shape matches the operator.
func (d Descriptor) Validate() error {
	if !IsIdentifier(d.Column) {
		return apperror.NewInvalidFilterFormat(d.String()).
			WithDetail("column", d.Column)
	}
	if !IsKnownSymbol(string(d.Operator)) {
		return apperror.NewInvalidFilterFormat(d.String()).
			WithDetail("operator", string(d.Operator))
	}

	_, isRange := d.Value.(Range)
	if (d.Operator == Between) != isRange {
		return apperror.NewInvalidFilterFormat(d.String())
	}
	return nil
}

// WithColumn returns a copy of d targeting column.
func (d Descriptor) WithColumn(column string) Descriptor {
	d.Column = column
	return d
}

// Spec is an unparsed filter DSL string. As a Filter it is parsed with DefaultDelimiter.
type Spec string

// ToQuery parses the DSL string and applies the resulting descriptor.
func (s Spec) ToQuery(q query.Query) (query.Query, error) {
	d, err := Parse(string(s), DefaultDelimiter)
	if err != nil {
		return q, err
	}
	return d.ToQuery(q)
}

// Func is a custom predicate that bypasses the DSL.
type Func func(q query.Query) query.Query

// ToQuery calls f. A nil result keeps q.
func (f Func) ToQuery(q query.Query) (query.Query, error) {
	if next := f(q); next != nil {
		return next, nil
	}
	return q, nil
}

// Column returns the leading column segment of the DSL string.
func (s Spec) Column(delimiter string) string {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	column, _, _ := strings.Cut(string(s), delimiter)
	return strings.TrimSpace(column)
}
