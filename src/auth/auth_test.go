package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	svc := New([]byte("test-secret"), nil)

	token, err := svc.Issue(42, "alice")
	require.NoError(t, err)

	identity, err := svc.Verify(token)
	require.NoError(t, err)
	assert.True(t, identity.Authenticated)
	assert.Equal(t, int64(42), identity.UserID)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "alice", identity.Name())
}

func TestVerifyExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * TokenTTL)
	issuer := New([]byte("test-secret"), func() time.Time { return issued })

	token, err := issuer.Issue(42, "alice")
	require.NoError(t, err)

	verifier := New([]byte("test-secret"), nil)
	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := New([]byte("secret-a"), nil).Issue(42, "alice")
	require.NoError(t, err)

	_, err = New([]byte("secret-b"), nil).Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := New([]byte("test-secret"), nil).Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
