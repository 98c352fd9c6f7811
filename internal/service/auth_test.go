package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerdocs/internal/apperr"
	"towerdocs/internal/config"
)

func newAuth(now time.Time) *authService {
	svc := NewAuthService(config.AdminConfig{
		Username:  "admin",
		Password:  "s3cret",
		JWTSecret: "signing-key",
		TokenTTL:  time.Hour,
	}, nil).(*authService)
	svc.now = func() time.Time { return now }
	return svc
}

func TestAuthService_LoginAndVerify(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuth(now)

	tok, err := svc.Login(context.Background(), "admin", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)

	sub, err := svc.Verify(tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", sub)
}

func TestAuthService_LoginRejectsBadCredentials(t *testing.T) {
	svc := newAuth(time.Now())

	for _, tc := range [][2]string{{"admin", "wrong"}, {"root", "s3cret"}, {"", ""}} {
		_, err := svc.Login(context.Background(), tc[0], tc[1])
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	}
}

func TestAuthService_VerifyRejects(t *testing.T) {
	issued := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := newAuth(issued)
	tok, err := svc.Login(context.Background(), "admin", "s3cret")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := newAuth(issued.Add(2 * time.Hour))
		_, err := later.Verify(tok.Token)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewAuthService(config.AdminConfig{Username: "admin", Password: "x", JWTSecret: "other"}, nil).(*authService)
		other.now = func() time.Time { return issued }
		_, err := other.Verify(tok.Token)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("none algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
		})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.Verify(raw)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Verify("not.a.jwt")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
		_, err = svc.Verify("")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}
