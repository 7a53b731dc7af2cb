package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/paystream/internal/config"
	"github.com/congo-pay/paystream/internal/identity"
)

func newTestService(t *testing.T) (*Service, identity.Repository, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	user := identity.User{ID: "user-1", Phone: "+242060000000"}
	require.NoError(t, repo.Create(context.Background(), user))

	cfg := config.Config{
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewService(cfg, repo), repo, user
}

func TestLoginTokensVerify(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)
	require.EqualValues(t, 60, pair.ExpiresIn)

	claims, err := svc.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)

	_, err = svc.VerifyAccess(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.VerifyAccess(ctx, access)
	require.NoError(t, err)
}

func TestLogoutRevokesTokens(t *testing.T) {
	svc, _, user := newTestService(t)
	ctx := context.Background()

	pair, err := svc.Login(user)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.VerifyAccess(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc, _, user := newTestService(t)
	issued := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return issued }

	pair, err := svc.Login(user)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = svc.VerifyAccess(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsTamperedToken(t *testing.T) {
	token, err := SignHS256(map[string]any{"sub": "x"}, []byte("k"))
	require.NoError(t, err)

	_, err = ParseAndVerifyHS256(token, []byte("other"))
	require.Error(t, err)
	_, err = ParseAndVerifyHS256("a.b", []byte("k"))
	require.Error(t, err)

	claims, err := ParseAndVerifyHS256(token, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "x", claims["sub"])
}
