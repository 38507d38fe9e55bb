package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newJWTer() *JWTer {
	return &JWTer{Secret: []byte("test-secret"), Issuer: "programs", TTL: time.Hour}
}

func TestJWTer_RoundTrip(t *testing.T) {
	j := newJWTer()
	tok, err := j.Issue("ops@example.org", RoleAdmin)
	require.NoError(t, err)

	c, err := j.Parse(tok)
	require.NoError(t, err)
	require.Equal(t, "ops@example.org", c.Email)
	require.Equal(t, RoleAdmin, c.Role)

	ctx := WithClaims(context.Background(), c)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, c, got)
}

func TestJWTer_Rejects(t *testing.T) {
	j := newJWTer()

	t.Run("wrong secret", func(t *testing.T) {
		other := newJWTer()
		other.Secret = []byte("other")
		tok, err := other.Issue("a@b.co", RoleAdmin)
		require.NoError(t, err)
		_, err = j.Parse(tok)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old := newJWTer()
		old.Now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
		tok, err := old.Issue("a@b.co", RoleAdmin)
		require.NoError(t, err)
		_, err = j.Parse(tok)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := newJWTer()
		other.Issuer = "someone-else"
		tok, err := other.Issue("a@b.co", RoleAdmin)
		require.NoError(t, err)
		_, err = j.Parse(tok)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
			Role: RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "programs",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = j.Parse(tok)
		require.Error(t, err)
	})

	t.Run("no secret configured", func(t *testing.T) {
		empty := &JWTer{}
		_, err := empty.Issue("a@b.co", RoleAdmin)
		require.Error(t, err)
		_, err = empty.Parse("x.y.z")
		require.Error(t, err)
	})
}
