package principal_test

import (
	"testing"
	"time"

	"github.com/jitaccess/broker/pkg/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormatRoundTrip(t *testing.T) {
	cases := []string{
		"user:alice@example.com",
		"group:approvers@example.com",
		"class:allauthenticated",
		"jit-group:env-1.sys-1.g-1",
	}
	for _, s := range cases {
		id, ok := principal.Parse(s)
		require.True(t, ok, s)
		assert.Equal(t, s, id.String())
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	id, ok := principal.Parse("user:Alice@Example.COM")
	require.True(t, ok)
	assert.Equal(t, "user:alice@example.com", id.String())
}

func TestParseMalformedReturnsAbsent(t *testing.T) {
	for _, s := range []string{"", "bogus", "user:", "user:noat", "jit-group:a.b", "foo:bar"} {
		_, ok := principal.Parse(s)
		assert.False(t, ok, s)
	}
}

func TestOrdering(t *testing.T) {
	a := principal.MustParse("user:alice@example.com")
	b := principal.MustParse("user:bob@example.com")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestResourceIDParseFormatRoundTrip(t *testing.T) {
	cases := []string{"projects/billing-prod", "folders/fld-1", "organizations/123"}
	for _, s := range cases {
		r, ok := principal.ParseResourceID(s)
		require.True(t, ok, s)
		assert.Equal(t, s, r.String())
	}
}

func TestResourceIDRejectsUnknownScope(t *testing.T) {
	for _, s := range []string{"", "bogus", "buckets/b1", "projects/", "projects"} {
		_, ok := principal.ParseResourceID(s)
		assert.False(t, ok, s)
	}
}

func TestRoleIDParseFormatRoundTrip(t *testing.T) {
	r, ok := principal.ParseRoleID("roles/viewer")
	require.True(t, ok)
	assert.Equal(t, "roles/viewer", r.String())
}

func TestRoleIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "viewer", "roles/", "role/viewer"} {
		_, ok := principal.ParseRoleID(s)
		assert.False(t, ok, s)
	}
}

func TestValidityExpired(t *testing.T) {
	now := time.Now()
	v := principal.Validity{NotAfter: now.Add(-10 * time.Second)}
	assert.False(t, v.ActiveAt(now))
}

func TestValidityOpenEnded(t *testing.T) {
	v := principal.Validity{}
	assert.True(t, v.OpenEnded())
	assert.True(t, v.ActiveAt(time.Now().Add(100*time.Hour)))
}

func TestJitGroupComponents(t *testing.T) {
	id := principal.JitGroup("env-1", "sys-1", "g-1")
	assert.Equal(t, "env-1", id.Env())
	assert.Equal(t, "sys-1", id.System())
	assert.Equal(t, "g-1", id.Local())
	assert.Equal(t, "env-1.sys-1.g-1", id.JitGroupString())
}
