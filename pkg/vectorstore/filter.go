package vectorstore

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/model"
)

// ErrInvalidFilter is returned for a filter with an empty field or an In
// without values.
var ErrInvalidFilter = errors.New("vectorstore: invalid filter")

type filterOp int

const (
	opNone filterOp = iota
	opEq
	opIn
	opAnd
)

// Filter is a predicate over metadata fields. Values are compared as
// strings. For list-valued fields such as keywords a condition holds when
// any element satisfies it. The zero Filter matches everything.
type Filter struct {
	op       filterOp
	field    string
	values   []string
	children []Filter
}

// Eq matches records whose field equals value.
func Eq(field, value string) Filter {
	return Filter{op: opEq, field: field, values: []string{value}}
}

// In matches records whose field equals one of values.
func In(field string, values ...string) Filter {
	return Filter{op: opIn, field: field, values: slices.Clone(values)}
}

// And matches records satisfying every filter. Zero filters are dropped.
func And(filters ...Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		if f.IsZero() {
			continue
		}
		if f.op == opAnd {
			kept = append(kept, f.children...)
			continue
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return Filter{}
	case 1:
		return kept[0]
	}
	return Filter{op: opAnd, children: kept}
}

// IsZero reports whether f matches everything.
func (f Filter) IsZero() bool { return f.op == opNone }

// Validate checks that every condition names a field and a value.
func (f Filter) Validate() error {
	switch f.op {
	case opNone:
		return nil
	case opEq, opIn:
		if f.field == "" {
			return fmt.Errorf("%w: empty field", ErrInvalidFilter)
		}
		if len(f.values) == 0 {
			return fmt.Errorf("%w: %s has no values", ErrInvalidFilter, f.field)
		}
	case opAnd:
		for _, c := range f.children {
			if err := c.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Matches evaluates f against a metadata record.
func (f Filter) Matches(m model.Metadata) bool {
	switch f.op {
	case opEq, opIn:
		for _, have := range m.Field(f.field) {
			if slices.Contains(f.values, have) {
				return true
			}
		}
		return false
	case opAnd:
		for _, c := range f.children {
			if !c.Matches(m) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// conditions returns the leaf conditions of f; nested Ands are flattened
// by construction.
func (f Filter) conditions() []Filter {
	switch f.op {
	case opNone:
		return nil
	case opAnd:
		return f.children
	default:
		return []Filter{f}
	}
}

func (f Filter) String() string {
	switch f.op {
	case opEq:
		return fmt.Sprintf("%s == %q", f.field, f.values[0])
	case opIn:
		return fmt.Sprintf("%s in %q", f.field, f.values)
	case opAnd:
		parts := make([]string, len(f.children))
		for i, c := range f.children {
			parts[i] = c.String()
		}
		return strings.Join(parts, " AND ")
	default:
		return "<all>"
	}
}
