package join

import (
	"testing"
	"time"

	"github.com/jitaccess/broker/pkg/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTSignerSignAndVerifyRoundTrip(t *testing.T) {
	keys, err := NewInMemoryKeySet()
	require.NoError(t, err)
	signer := NewJWTSigner(keys)

	user := principal.User("alice", "example.com")
	group := principal.JitGroup("env1", "sys1", "g1")
	approver := principal.User("bob", "example.com")

	signed, err := signer.Sign(user, group, []principal.ID{approver}, map[string]string{"reason": "oncall"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Token)

	payload, err := signer.Verify(signed.Token)
	require.NoError(t, err)
	assert.Equal(t, user, payload.User)
	assert.Equal(t, group, payload.Group)
	require.Len(t, payload.Recipients, 1)
	assert.Equal(t, approver, payload.Recipients[0])
	assert.Equal(t, "oncall", payload.Inputs["reason"])
	assert.NotEmpty(t, payload.JTI)
}

func TestJWTSignerRecipientsAreSorted(t *testing.T) {
	keys, err := NewInMemoryKeySet()
	require.NoError(t, err)
	signer := NewJWTSigner(keys)

	user := principal.User("alice", "example.com")
	group := principal.JitGroup("env1", "sys1", "g1")
	zed := principal.User("zed", "example.com")
	amy := principal.User("amy", "example.com")

	signed, err := signer.Sign(user, group, []principal.ID{zed, amy}, nil, time.Hour)
	require.NoError(t, err)

	payload, err := signer.Verify(signed.Token)
	require.NoError(t, err)
	require.Len(t, payload.Recipients, 2)
	assert.True(t, payload.Recipients[0].Less(payload.Recipients[1]))
}

func TestJWTSignerRejectsTamperedToken(t *testing.T) {
	keys, err := NewInMemoryKeySet()
	require.NoError(t, err)
	signer := NewJWTSigner(keys)

	user := principal.User("alice", "example.com")
	group := principal.JitGroup("env1", "sys1", "g1")
	signed, err := signer.Sign(user, group, nil, nil, time.Hour)
	require.NoError(t, err)

	_, err = signer.Verify(signed.Token + "x")
	assert.Error(t, err)
}
