package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unknownPredicate struct{}

func (unknownPredicate) String() string { return "?" }
func (unknownPredicate) predicate()     {}

func TestMatch(t *testing.T) {
	rec := MapRecord{"owner_id": "u1", "department": "Sales", "customer_id": int64(7), "deleted_at": nil}

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"const true", True, true},
		{"const false", False, false},
		{"eq match", Eq{Field: "owner_id", Value: "u1"}, true},
		{"eq mismatch", Eq{Field: "owner_id", Value: "u2"}, false},
		{"eq missing field", Eq{Field: "region", Value: "eu"}, false},
		{"eq nil field", Eq{Field: "deleted_at", Value: "x"}, false},
		{"eq across numeric and string", Eq{Field: "customer_id", Value: "7"}, true},
		{"in match", In{Field: "department", Values: []any{"Ops", "Sales"}}, true},
		{"in empty", In{Field: "department"}, false},
		{"and", And{Eq{Field: "owner_id", Value: "u1"}, Eq{Field: "department", Value: "Ops"}}, false},
		{"or", Or{Eq{Field: "owner_id", Value: "u2"}, Eq{Field: "department", Value: "Sales"}}, true},
		{"empty and", And{}, true},
		{"empty or", Or{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(tt.p, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_UnknownPredicate(t *testing.T) {
	_, err := Match(Or{Eq{Field: "a", Value: 1}, unknownPredicate{}}, MapRecord{})
	assert.ErrorIs(t, err, ErrUnknownPredicate)
}
