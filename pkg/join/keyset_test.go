package join

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryKeySetSignAndVerifyRoundTrip(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{Subject: "test"}
	tok, err := ks.Sign(context.Background(), claims)
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(tok, &jwt.RegisteredClaims{}, ks.KeyFunc())
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestInMemoryKeySetVerifiesAfterRotation(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{Subject: "before-rotation"}
	tok, err := ks.Sign(context.Background(), claims)
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())

	parsed, err := jwt.ParseWithClaims(tok, &jwt.RegisteredClaims{}, ks.KeyFunc())
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestInMemoryKeySetRejectsUnknownKID(t *testing.T) {
	ks1, err := NewInMemoryKeySet()
	require.NoError(t, err)
	ks2, err := NewInMemoryKeySet()
	require.NoError(t, err)

	tok, err := ks1.Sign(context.Background(), jwt.RegisteredClaims{Subject: "x"})
	require.NoError(t, err)

	_, err = jwt.ParseWithClaims(tok, &jwt.RegisteredClaims{}, ks2.KeyFunc())
	assert.Error(t, err)
}
