package attributes

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringSet(t *testing.T) {
	s := NewStringSet("b", "a", "", "b")
	assert.Len(t, s, 2)
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b"}, s.Sorted())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))

	var decoded StringSet
	require.NoError(t, json.Unmarshal([]byte(`["x","","x"]`), &decoded))
	assert.Equal(t, []string{"x"}, decoded.Sorted())

	clone := s.Clone()
	clone["c"] = struct{}{}
	assert.False(t, s.Has("c"))
}

func TestUserAttributes_Accessors(t *testing.T) {
	var nilAttrs *UserAttributes
	assert.False(t, nilAttrs.HasRole("admin"))
	assert.False(t, nilAttrs.InAdminGroup("g1"))
	assert.True(t, nilAttrs.IsEmpty())
	_, ok := nilAttrs.Attr("x")
	assert.False(t, ok)

	u := Empty("u1", "reports")
	assert.True(t, u.IsEmpty())

	u.Roles = NewStringSet("viewer")
	u.AdminGroupIDs = NewStringSet("g1")
	u.CustomerIDs = NewStringSet("c1")
	u.ServiceAttrs["region"] = "eu"

	assert.False(t, u.IsEmpty())
	assert.True(t, u.HasAnyRole("admin", "viewer"))
	assert.False(t, u.HasAnyRole("admin"))
	assert.True(t, u.InAdminGroup("g1"))
	assert.True(t, u.HasCustomer("c1"))
	v, ok := u.Attr("region")
	assert.True(t, ok)
	assert.Equal(t, "eu", v)
}

func TestUserAttributes_CloneIsDeep(t *testing.T) {
	u := Empty("u1", "reports")
	u.Roles = NewStringSet("viewer")
	u.ServiceAttrs["limits"] = map[string]any{"max": 5}
	u.ServiceAttrs["regions"] = []any{"eu"}

	c := u.Clone()
	c.Roles["admin"] = struct{}{}
	c.ServiceAttrs["limits"].(map[string]any)["max"] = 10
	c.ServiceAttrs["regions"].([]any)[0] = "us"

	assert.False(t, u.HasRole("admin"))
	assert.Equal(t, 5, u.ServiceAttrs["limits"].(map[string]any)["max"])
	assert.Equal(t, "eu", u.ServiceAttrs["regions"].([]any)[0])
	assert.Nil(t, (*UserAttributes)(nil).Clone())
}

func TestUserAttributes_JSONRoundTripNormalizes(t *testing.T) {
	var u UserAttributes
	require.NoError(t, json.Unmarshal([]byte(`{"user_id":"u1","service":"reports"}`), &u))
	u.normalize()

	assert.NotNil(t, u.Roles)
	assert.NotNil(t, u.AdminGroupIDs)
	assert.NotNil(t, u.CustomerIDs)
	assert.NotNil(t, u.ServiceAttrs)
	assert.True(t, u.IsEmpty())
}

func TestDependencyError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := unavailable("cache", cause)

	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cache")

	wrapped := fmt.Errorf("outer: %w", err)
	again := unavailable("role source", wrapped)
	var de *DependencyError
	require.ErrorAs(t, again, &de)
	assert.Equal(t, "cache", de.Dependency, "the innermost dependency is kept")

	assert.NoError(t, unavailable("cache", nil))
}
