package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"towerdocs/internal/apperr"
	"towerdocs/internal/config"
	"towerdocs/internal/logger"
)

const tokenIssuer = "towerdocs"

// Token is the bearer credential handed to the admin after login.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService authenticates the single configured admin.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*Token, error)
	// Verify returns the subject of a valid token.
	Verify(token string) (string, error)
}

type authService struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	log      *logger.Logger
	now      func() time.Time
}

func NewAuthService(cfg config.AdminConfig, log *logger.Logger) AuthService {
	if log == nil {
		log = logger.Nop()
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &authService{
		username: cfg.Username,
		password: cfg.Password,
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

func (s *authService) Login(_ context.Context, username, password string) (*Token, error) {
	userOK := equalSecret(username, s.username)
	passOK := equalSecret(password, s.password)
	if !userOK || !passOK || s.password == "" {
		s.log.Warn("admin_login_failed", "username", username)
		return nil, apperr.ErrUnauthorized
	}

	now := s.now()
	expires := now.Add(s.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   s.username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	s.log.Info("admin_login", "username", s.username)
	return &Token{Token: signed, ExpiresAt: expires.UTC()}, nil
}

func (s *authService) Verify(token string) (string, error) {
	if token == "" {
		return "", apperr.ErrUnauthorized
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", errors.Join(apperr.ErrUnauthorized, err)
	}
	if claims.Subject != s.username {
		return "", apperr.ErrUnauthorized
	}
	return claims.Subject, nil
}

// equalSecret compares in constant time regardless of input lengths.
func equalSecret(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	w := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], w[:]) == 1
}
