package filter

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"tablequery/internal/core/query"
)

// ToQuery validates d and AND-combines its predicate onto q.
func (d Descriptor) ToQuery(q query.Query) (query.Query, error) {
	if err := d.Validate(); err != nil {
		return q, err
	}

	switch d.Operator {
	case Between:
		r := d.Value.(Range)
		return q.WhereRange(d.Column, r.Start, r.End), nil
	case InList:
		return q.Where(squirrel.Eq{d.Column: sequence(d.Value)}), nil
	case NotInList:
		return q.Where(squirrel.NotEq{d.Column: sequence(d.Value)}), nil
	case Equal:
		return q.Where(squirrel.Eq{d.Column: d.Value}), nil
	case NotEqual:
		return q.Where(squirrel.NotEq{d.Column: d.Value}), nil
	case Greater:
		return q.Where(squirrel.Gt{d.Column: d.Value}), nil
	case GreaterOrEqual:
		return q.Where(squirrel.GtOrEq{d.Column: d.Value}), nil
	case Less:
		return q.Where(squirrel.Lt{d.Column: d.Value}), nil
	case LessOrEqual:
		return q.Where(squirrel.LtOrEq{d.Column: d.Value}), nil
	case Like:
		return q.Where(squirrel.Like{d.Column: d.Value}), nil
	case RLike:
		// PostgreSQL regular expression match
		return q.Where(squirrel.Expr(d.Column+" ~ ?", d.Value)), nil
	default:
		return q, fmt.Errorf("unhandled operator %q", d.Operator)
	}
}

// sequence turns a membership value into a slice. Strings are comma-separated lists.
func sequence(v any) []any {
	switch val := v.(type) {
	case nil:
		return []any{}
	case string:
		parts := strings.Split(val, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []int:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	default:
		return []any{val}
	}
}
