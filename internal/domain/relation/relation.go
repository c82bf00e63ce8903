// Package relation resolves relation specs ("company|name as company") against
// schema metadata and attaches them to a query as a left join or a correlated
// sub-select, depending on the relation's cardinality.
package relation

import (
	"regexp"
	"strings"
	"unicode"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
)

// Cardinality is a relation's multiplicity.
type Cardinality string

const (
	HasMany   Cardinality = "has_many"
	BelongsTo Cardinality = "belongs_to"
	Other     Cardinality = "other"
)

// ParseCardinality maps a schema tag onto a Cardinality. Unrecognized tags are Other.
func ParseCardinality(tag string) Cardinality {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "has_many", "hasmany", "has-many":
		return HasMany
	case "belongs_to", "belongsto", "belongs-to":
		return BelongsTo
	default:
		return Other
	}
}

// Meta describes how a relation joins its parent.
//
// For BelongsTo, ForeignKey lives on the parent and PrimaryKey on the related table.
// For HasMany, ForeignKey lives on the related table and PrimaryKey on the parent.
type Meta struct {
	Table       string
	ForeignKey  string
	PrimaryKey  string
	Cardinality Cardinality
	// Tag is the raw cardinality tag as declared, kept for diagnostics.
	Tag string
}

// Schema provides relation metadata. Implementations return
// apperror.NewUnknownRelation when name is not defined on parent.
type Schema interface {
	Relation(parent, name string) (Meta, error)
}

// Column is the projected side of a relation: Literal, RawExpression or Projection.
type Column interface {
	isColumn()
}

// Literal is a plain column of the related table.
type Literal string

// RawExpression is an SQL fragment used verbatim.
type RawExpression string

// Projection shapes a correlated sub-query over the related table.
type Projection func(sub query.Query) query.Query

func (Literal) isColumn()       {}
func (RawExpression) isColumn() {}
func (Projection) isColumn()    {}

// Spec is an unresolved relation: "relation|column [as alias]", or
// "relation [as alias]" together with a Projection.
type Spec struct {
	Expr       string
	Projection Projection
}

// Expr returns a string spec.
func Expr(expr string) Spec {
	return Spec{Expr: expr}
}

// Callback returns a spec whose column is produced by fn.
func Callback(expr string, fn Projection) Spec {
	return Spec{Expr: expr, Projection: fn}
}

func (s Spec) String() string {
	return s.Expr
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Resolve parses spec and looks its relation up on parent.
func Resolve(spec Spec, parent string, schema Schema) (Descriptor, error) {
	malformed := func(reason string) error {
		return apperror.NewMalformedRelationSpec(spec.Expr).WithDetail("reason", reason)
	}

	left, alias := splitAlias(spec.Expr)
	name, columnExpr, hasPair := strings.Cut(left, "|")
	name = strings.TrimSpace(name)
	columnExpr = strings.TrimSpace(columnExpr)

	switch {
	case spec.Projection != nil && hasPair:
		return Descriptor{}, malformed("a callback relation takes no column")
	case spec.Projection == nil && !hasPair:
		return Descriptor{}, malformed("missing relation|column pair")
	case spec.Projection == nil && columnExpr == "":
		return Descriptor{}, malformed("empty column")
	case !namePattern.MatchString(name):
		return Descriptor{}, malformed("invalid relation name")
	}

	meta, err := schema.Relation(parent, name)
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Spec:        spec.Expr,
		Name:        name,
		Parent:      parent,
		Table:       meta.Table,
		ForeignKey:  meta.ForeignKey,
		PrimaryKey:  meta.PrimaryKey,
		Cardinality: meta.Cardinality,
		Tag:         meta.Tag,
	}

	switch {
	case spec.Projection != nil:
		d.Column = spec.Projection
	case isRaw(columnExpr):
		d.Column = RawExpression(columnExpr)
	case namePattern.MatchString(columnExpr):
		d.Column = Literal(columnExpr)
	default:
		return Descriptor{}, malformed("invalid column")
	}

	if alias == "" {
		switch col := d.Column.(type) {
		case Literal:
			alias = meta.Table + "_" + string(col)
		case Projection:
			alias = meta.Table + "_" + name
		default:
			return Descriptor{}, malformed("raw expressions require an alias")
		}
	}
	if !namePattern.MatchString(alias) {
		return Descriptor{}, malformed("invalid alias")
	}
	d.Alias = alias

	return d, nil
}

// isRaw reports whether a column token is an SQL expression rather than a column name.
func isRaw(column string) bool {
	return strings.ContainsAny(column, "()*") || strings.IndexFunc(column, unicode.IsSpace) >= 0
}

// splitAlias splits "left as alias" on the last top-level, unquoted " as ".
// The separator is matched case-insensitively.
func splitAlias(expr string) (left, alias string) {
	var (
		depth int
		quote byte
	)
	cut, cutEnd := -1, -1

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && isSpace(c):
			if end, ok := matchAs(expr, i); ok {
				cut, cutEnd = i, end
			}
		}
	}

	if cut < 0 {
		return strings.TrimSpace(expr), ""
	}
	return strings.TrimSpace(expr[:cut]), strings.TrimSpace(expr[cutEnd:])
}

// matchAs matches whitespace, "as", whitespace starting at i and returns the end offset.
func matchAs(s string, i int) (int, bool) {
	j := i
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	if j+2 > len(s) || !strings.EqualFold(s[j:j+2], "as") {
		return 0, false
	}

	k := j + 2
	if k >= len(s) || !isSpace(s[k]) {
		return 0, false
	}
	for k < len(s) && isSpace(s[k]) {
		k++
	}
	return k, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
