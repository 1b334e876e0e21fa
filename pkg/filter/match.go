package filter

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrUnknownPredicate is returned for a Predicate implementation this package does not know
var ErrUnknownPredicate = errors.New("unknown predicate type")

// Record exposes named fields to in-process matching
type Record interface {
	FieldValue(name string) (any, bool)
}

// MapRecord is a Record backed by a map
type MapRecord map[string]any

// FieldValue returns the named field
func (m MapRecord) FieldValue(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Match evaluates p against rec the way a storage layer would. A missing field never
// equals anything, mirroring SQL NULL comparison.
func Match(p Predicate, rec Record) (bool, error) {
	switch t := p.(type) {
	case Const:
		return bool(t), nil
	case Eq:
		v, ok := rec.FieldValue(t.Field)
		if !ok || v == nil {
			return false, nil
		}
		return equalValues(v, t.Value), nil
	case In:
		v, ok := rec.FieldValue(t.Field)
		if !ok || v == nil {
			return false, nil
		}
		for _, candidate := range t.Values {
			if equalValues(v, candidate) {
				return true, nil
			}
		}
		return false, nil
	case And:
		for _, c := range t {
			ok, err := Match(c, rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, c := range t {
			ok, err := Match(c, rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnknownPredicate, p)
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == tb && ta.Comparable() {
		return a == b
	}
	// Values from the database and from attribute bundles often differ only in type
	// (int64 vs string IDs); compare their canonical text.
	return fmt.Sprint(a) == fmt.Sprint(b)
}
