package auth

import (
	"errors"
	"testing"
	"time"

	"voice-platform/internal/config"
)

func newTestManager(t *testing.T, cfg config.AuthConfig) *Manager {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "secret"
	}
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 24 * time.Hour
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

var analyst = Identity{UserID: "user-1", TenantID: "tenant-1", Role: "analyst"}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t, config.AuthConfig{JWTIssuer: "issuer", JWTAudience: "aud"})

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, analyst)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}
	if !pair.AccessExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", pair.AccessExpiresAt)
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Identity() != analyst {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newTestManager(t, config.AuthConfig{})
	p, err := m.IssuePair(time.Now(), analyst)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newTestManager(t, config.AuthConfig{JWTIssuer: "issuer"})
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, analyst)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	other := newTestManager(t, config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer"})
	if _, err := other.Verify(p.AccessToken, TokenTypeAccess, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected bad signature rejected, got %v", err)
	}

	strict := newTestManager(t, config.AuthConfig{JWTIssuer: "someone-else"})
	if _, err := strict.Verify(p.AccessToken, TokenTypeAccess, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch rejected, got %v", err)
	}
}

func TestIssuePairRequiresIdentity(t *testing.T) {
	m := newTestManager(t, config.AuthConfig{})
	if _, err := m.IssuePair(time.Now(), Identity{UserID: "u", TenantID: "t"}); !errors.Is(err, ErrMissingClaim) {
		t.Fatalf("expected ErrMissingClaim, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	m := newTestManager(t, config.AuthConfig{})
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, analyst)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later := now.Add(30 * time.Minute)
	next, err := m.Refresh(p.RefreshToken, later)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := m.Verify(next.AccessToken, TokenTypeAccess, later)
	if err != nil {
		t.Fatalf("verify refreshed: %v", err)
	}
	if claims.Identity() != analyst {
		t.Fatalf("unexpected refreshed identity: %+v", claims.Identity())
	}

	if _, err := m.Refresh(p.AccessToken, later); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}
