package backend

import (
	"fmt"
	"time"
)

// Op is a comparison operator of a query filter.
type Op string

const (
	OpEqual          Op = "=="
	OpGreaterOrEqual Op = ">="
	OpLess           Op = "<"
)

// Filter compares a top-level string field against Value.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Query selects documents of one collection. The zero Query matches everything
// in store order.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value string) Query {
	filters := make([]Filter, 0, len(q.Filters)+1)
	filters = append(filters, q.Filters...)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Order returns a copy of q sorted on field.
func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Match evaluates a filter against a field value. Values compare as strings,
// byte-wise, which matches codepoint order for UTF-8.
func (f Filter) Match(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return s == f.Value
	case OpGreaterOrEqual:
		return s >= f.Value
	case OpLess:
		return s < f.Value
	default:
		return false
	}
}

// Compare orders two field values: times chronologically, everything else by
// string form. Missing values sort first.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
