package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Predicate is a declarative boolean expression over named record fields. It is the
// storage-level form of a policy: equivalent to the row check, evaluated by the query layer.
type Predicate interface {
	String() string
	predicate()
}

// Const is a predicate that is always true or always false
type Const bool

const (
	// True matches every record
	True Const = true
	// False matches no record
	False Const = false
)

func (c Const) String() string {
	if c {
		return "TRUE"
	}
	return "FALSE"
}

func (Const) predicate() {}

// Eq matches records whose Field equals Value
type Eq struct {
	Field string
	Value any
}

func (e Eq) String() string {
	return fmt.Sprintf("%s = %v", e.Field, e.Value)
}

func (Eq) predicate() {}

// In matches records whose Field equals one of Values. An empty In matches nothing.
type In struct {
	Field  string
	Values []any
}

func (in In) String() string {
	parts := make([]string, len(in.Values))
	for i, v := range in.Values {
		parts[i] = fmt.Sprint(v)
	}
	return fmt.Sprintf("%s IN (%s)", in.Field, strings.Join(parts, ", "))
}

func (In) predicate() {}

// And matches records matching every operand. An empty And matches everything.
type And []Predicate

func (a And) String() string {
	return join(a, " AND ", True)
}

func (And) predicate() {}

// Or matches records matching at least one operand. An empty Or matches nothing.
type Or []Predicate

func (o Or) String() string {
	return join(o, " OR ", False)
}

func (Or) predicate() {}

func join(ps []Predicate, sep string, empty Const) string {
	if len(ps) == 0 {
		return empty.String()
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = "(" + p.String() + ")"
	}
	return strings.Join(parts, sep)
}

// AllOf builds a conjunction, folding constants and flattening nested conjunctions
func AllOf(ps ...Predicate) Predicate {
	out := make(And, 0, len(ps))
	for _, p := range ps {
		switch t := p.(type) {
		case nil:
			continue
		case Const:
			if !t {
				return False
			}
		case And:
			inner := AllOf(t...)
			if c, ok := inner.(Const); ok {
				if !c {
					return False
				}
				continue
			}
			if nested, ok := inner.(And); ok {
				out = append(out, nested...)
			} else {
				out = append(out, inner)
			}
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return out
}

// AnyOf builds a disjunction, folding constants and flattening nested disjunctions
func AnyOf(ps ...Predicate) Predicate {
	out := make(Or, 0, len(ps))
	for _, p := range ps {
		switch t := p.(type) {
		case nil:
			continue
		case Const:
			if t {
				return True
			}
		case Or:
			inner := AnyOf(t...)
			if c, ok := inner.(Const); ok {
				if c {
					return True
				}
				continue
			}
			if nested, ok := inner.(Or); ok {
				out = append(out, nested...)
			} else {
				out = append(out, inner)
			}
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return False
	case 1:
		return out[0]
	}
	return out
}

// InStrings builds an In over a string set, sorted for stable SQL
func InStrings(field string, values []string) Predicate {
	if len(values) == 0 {
		return False
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	if len(sorted) == 1 {
		return Eq{Field: field, Value: sorted[0]}
	}
	vals := make([]any, len(sorted))
	for i, v := range sorted {
		vals[i] = v
	}
	return In{Field: field, Values: vals}
}

// Fields returns the sorted distinct field names referenced by p
func Fields(p Predicate) []string {
	seen := map[string]struct{}{}
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch t := p.(type) {
		case Eq:
			seen[t.Field] = struct{}{}
		case In:
			seen[t.Field] = struct{}{}
		case And:
			for _, c := range t {
				walk(c)
			}
		case Or:
			for _, c := range t {
				walk(c)
			}
		}
	}
	walk(p)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
