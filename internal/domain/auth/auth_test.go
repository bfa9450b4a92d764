package auth

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestIssuer(t *testing.T, now time.Time) *Issuer {
	t.Helper()
	i, err := NewIssuer(TokenConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "storefront-test",
	})
	require.NoError(t, err)
	i.now = func() time.Time { return now }
	return i
}

func TestIssuer_RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	i := newTestIssuer(t, now)

	tokens, err := i.Issue(Principal{UserID: "u1", Role: RoleAdmin})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)

	p, err := i.VerifyAccess(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", Role: RoleAdmin}, p)
	assert.True(t, p.IsAdmin())

	userID, err := i.VerifyRefresh(tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestIssuer_Rejects(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	i := newTestIssuer(t, now)

	tokens, err := i.Issue(Principal{UserID: "u1", Role: RoleConsumer})
	require.NoError(t, err)

	tests := []struct {
		name   string
		verify func() error
	}{
		{
			name: "RefreshAsAccess",
			verify: func() error {
				_, err := i.VerifyAccess(tokens.RefreshToken)
				return err
			},
		},
		{
			name: "AccessAsRefresh",
			verify: func() error {
				_, err := i.VerifyRefresh(tokens.AccessToken)
				return err
			},
		},
		{
			name: "Garbage",
			verify: func() error {
				_, err := i.VerifyAccess("not-a-token")
				return err
			},
		},
		{
			name: "Expired",
			verify: func() error {
				later := newTestIssuer(t, now.Add(2*time.Minute))
				_, err := later.VerifyAccess(tokens.AccessToken)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verify()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer(TokenConfig{AccessSecret: []byte("a")})
	require.Error(t, err)
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", hash)

	assert.NoError(t, h.Compare(hash, "s3cret!"))
	assert.True(t, errors.Is(h.Compare(hash, "wrong"), ErrInvalidCredentials))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u9", Role: RoleConsumer})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u9", p.UserID)
	assert.False(t, p.IsAdmin())
}
