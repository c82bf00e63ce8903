package filter

import (
	"strconv"
	"strings"

	"tablequery/internal/core/apperror"
)

// Parse turns a DSL string into a Descriptor.
//
//	column;value                  operator "="
//	column;op;value
//	column;between;start;end
//
// The whole input is lower-cased first, so operator and column matching is
// case-insensitive. An empty delimiter means DefaultDelimiter.
func Parse(spec, delimiter string) (Descriptor, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}

	segments := strings.Split(strings.ToLower(spec), delimiter)
	invalid := apperror.NewInvalidFilterFormat(spec)

	var d Descriptor
	switch len(segments) {
	case 2:
		d = Descriptor{
			Column:   strings.TrimSpace(segments[0]),
			Operator: Equal,
			Value:    segments[1],
		}

	case 3:
		op, err := resolveOperator(segments[1])
		if err != nil {
			return Descriptor{}, invalid.WithCause(err)
		}
		d = Descriptor{
			Column:   strings.TrimSpace(segments[0]),
			Operator: op,
			Value:    segments[2],
		}

	case 4:
		if strings.TrimSpace(segments[1]) != string(Between) {
			return Descriptor{}, invalid
		}
		d = Descriptor{
			Column:   strings.TrimSpace(segments[0]),
			Operator: Between,
			Value:    Range{Start: segments[2], End: segments[3]},
		}

	default:
		return Descriptor{}, invalid
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, invalid
	}
	return d, nil
}

// resolveOperator canonicalizes the middle segment of a 3-segment spec.
func resolveOperator(token string) (Operator, error) {
	token = strings.TrimSpace(token)
	if _, err := strconv.ParseFloat(token, 64); err == nil {
		return "", apperror.NewValidation("numeric operator token " + token)
	}

	op, ok := Canonicalize(token)
	if !ok {
		return "", apperror.NewValidation("unknown operator " + token)
	}
	if op == Between {
		return "", apperror.NewValidation("between requires start and end")
	}
	return op, nil
}
