package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
)

func TestAuthenticate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newAuthService("secret", func() time.Time { return now })

	valid, err := svc.IssueToken("alice", "Alice", time.Hour)
	require.NoError(t, err)

	expired, err := newAuthService("secret", func() time.Time { return now.Add(-2 * time.Hour) }).
		IssueToken("alice", "", time.Hour)
	require.NoError(t, err)

	foreign, err := newAuthService("other-secret", func() time.Time { return now }).
		IssueToken("alice", "", time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.TokenClaims{UserID: "alice"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &models.TokenClaims{
		UserID:           "alice",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		reason pkg.AuthReason
	}{
		{"missing", "   ", pkg.AuthMissing},
		{"garbage", "not-a-jwt", pkg.AuthMalformed},
		{"expired", expired, pkg.AuthExpiredToken},
		{"wrong key", foreign, pkg.AuthInvalidSignature},
		{"alg none", unsigned, pkg.AuthInvalidSignature},
		{"no exp", noExp, pkg.AuthMalformed},
		{"no user", noUser, pkg.AuthMalformed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)

			_, err := svc.Authenticate(tc.token)

			var authErr *pkg.AuthError
			req.ErrorAs(err, &authErr)
			req.Equal(tc.reason, authErr.Reason)
			req.ErrorIs(err, pkg.ErrUnauthorized)
		})
	}

	t.Run("valid", func(t *testing.T) {
		req := require.New(t)

		claims, err := svc.Authenticate(valid)

		req.NoError(err)
		req.Equal("alice", claims.UserID)
		req.Equal("Alice", claims.Username)
	})
}

func TestIssueToken_RequiresUser(t *testing.T) {
	_, err := NewAuthService("secret").IssueToken(" ", "", time.Minute)
	require.ErrorIs(t, err, pkg.ErrBadRequest)
}
