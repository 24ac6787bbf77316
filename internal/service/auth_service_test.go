package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/invoiceflow/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func newAuthServiceWithoutRedis() *AuthService {
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:             "test-secret",
			AccessTokenExpire:  time.Hour,
			RefreshTokenExpire: 24 * time.Hour,
			Issuer:             "invoiceflow-test",
		},
	}
	return NewAuthService(nil, nil, nil, cfg, zap.NewNop())
}

func signedRefreshToken(t *testing.T, secret string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "user-001",
		ID:        "jti-001",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// redis未配置时refresh/logout必须安全降级，不能panic
func TestRefreshWithoutRedis(t *testing.T) {
	svc := newAuthServiceWithoutRedis()
	token := signedRefreshToken(t, "test-secret")

	pair, err := svc.Refresh(context.Background(), token)
	if pair != nil {
		t.Errorf("expected no token pair, got %v", pair)
	}
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutWithoutRedis(t *testing.T) {
	svc := newAuthServiceWithoutRedis()
	token := signedRefreshToken(t, "test-secret")

	if err := svc.Logout(context.Background(), token); err != nil {
		t.Errorf("logout should succeed without redis, got %v", err)
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	svc := newAuthServiceWithoutRedis()

	if _, err := svc.Refresh(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.Logout(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
