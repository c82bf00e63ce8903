package filter

import "strings"

// Operator is a canonical comparison operator.
type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "!="
	Greater        Operator = ">"
	GreaterOrEqual Operator = ">="
	Less           Operator = "<"
	LessOrEqual    Operator = "<="
	Like           Operator = "like"
	RLike          Operator = "rlike"
	InList         Operator = "in"
	NotInList      Operator = "not in"
	Between        Operator = "between"
)

// aliases maps short DSL tokens to canonical operators.
var aliases = map[string]Operator{
	"gt":  Greater,
	"gte": GreaterOrEqual,
	"eq":  Equal,
	"lte": LessOrEqual,
	"lt":  Less,
	"ne":  NotEqual,
	"nin": NotInList,
}

// symbols is the set of operators accepted verbatim.
var symbols = map[Operator]struct{}{
	Equal:          {},
	NotEqual:       {},
	Greater:        {},
	GreaterOrEqual: {},
	Less:           {},
	LessOrEqual:    {},
	Like:           {},
	RLike:          {},
	InList:         {},
	NotInList:      {},
	Between:        {},
}

// Canonicalize resolves an alias token or a canonical symbol. Lookup is case-insensitive.
func Canonicalize(token string) (Operator, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if op, ok := aliases[token]; ok {
		return op, true
	}
	if IsKnownSymbol(token) {
		return Operator(token), true
	}
	return "", false
}

// IsKnownSymbol reports whether token is a canonical operator.
func IsKnownSymbol(token string) bool {
	_, ok := symbols[Operator(strings.ToLower(token))]
	return ok
}

// Kind classifies an operator by the shape of value it takes.
type Kind int

const (
	KindEquality Kind = iota
	KindComparison
	KindRange
	KindMembership
)

func (k Kind) String() string {
	switch k {
	case KindEquality:
		return "equality"
	case KindComparison:
		return "comparison"
	case KindRange:
		return "range"
	case KindMembership:
		return "membership"
	default:
		return "unknown"
	}
}

// Kind returns the value shape of op.
func (op Operator) Kind() Kind {
	switch op {
	case Equal, NotEqual:
		return KindEquality
	case Between:
		return KindRange
	case InList, NotInList:
		return KindMembership
	default:
		return KindComparison
	}
}
