package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/example/vintagemart/internal/config"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: "test-secret"}
}

func TestTokenRoundtrip(t *testing.T) {
	cfg := testJWTConfig()
	uid := uuid.New()
	token, err := GenerateToken(cfg, uid, "a@b.com", "customer")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != uid || claims.Email != "a@b.com" || claims.Role != "customer" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(testJWTConfig(), uuid.New(), "a@b.com", "customer")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(&config.JWTConfig{Secret: "other"}, token); err == nil {
		t.Fatal("wrong secret should fail verification")
	}
}

func TestResolveAuthenticated(t *testing.T) {
	cfg := testJWTConfig()
	r := NewResolver(cfg, nil, nil)
	uid := uuid.New()
	token, err := GenerateToken(cfg, uid, "a@b.com", "customer")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// 裸 token 和 Bearer 前缀都认
	for _, header := range []string{token, "Bearer " + token} {
		id := r.Resolve(context.Background(), header, "")
		if id.Kind != KindAuthenticated || id.UserID != uid {
			t.Fatalf("expected authenticated identity for %q, got %+v", header, id)
		}
	}
}

func TestResolveFallsBackToGuest(t *testing.T) {
	r := NewResolver(testJWTConfig(), nil, nil)
	sid := uuid.New()

	// 无效 token + 会话头 -> 游客，宽松模式不冒泡 token 错误
	id := r.Resolve(context.Background(), "Bearer garbage", sid.String())
	if id.Kind != KindGuest || id.GuestSessionID != sid {
		t.Fatalf("expected guest identity, got %+v", id)
	}
}

func TestResolveAnonymous(t *testing.T) {
	r := NewResolver(testJWTConfig(), nil, nil)

	cases := []struct{ token, session string }{
		{"", ""},
		{"garbage", ""},
		{"", "not-a-uuid"},
	}
	for _, tc := range cases {
		id := r.Resolve(context.Background(), tc.token, tc.session)
		if id.Kind != KindAnonymous {
			t.Fatalf("Resolve(%q, %q) should be anonymous, got %+v", tc.token, tc.session, id)
		}
	}
}

func TestRequireUser(t *testing.T) {
	cfg := testJWTConfig()
	r := NewResolver(cfg, nil, nil)

	if _, err := r.RequireUser(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: expected ErrUnauthorized, got %v", err)
	}
	if _, err := r.RequireUser(context.Background(), "Bearer garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad token: expected ErrUnauthorized, got %v", err)
	}

	uid := uuid.New()
	token, err := GenerateToken(cfg, uid, "a@b.com", "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := r.RequireUser(context.Background(), "Bearer "+token)
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if id.UserID != uid || !id.IsAdmin("admin") {
		t.Fatalf("unexpected identity: %+v", id)
	}
}
