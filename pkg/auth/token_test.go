package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}
}

func TestMintAndParseOperatorToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	operatorID := uuid.New()

	token, err := MintOperatorToken(cfg, now, OperatorTokenPayload{
		OperatorID: operatorID,
		Email:      "ops@example.com",
		Role:       enums.MemberRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint operator token: %v", err)
	}

	claims, err := ParseOperatorToken(cfg, token)
	if err != nil {
		t.Fatalf("parse operator token: %v", err)
	}
	if claims.OperatorID != operatorID {
		t.Fatalf("expected operator_id %s, got %s", operatorID, claims.OperatorID)
	}
	if claims.Role != enums.MemberRoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Actor() != "ops@example.com" {
		t.Fatalf("unexpected actor %q", claims.Actor())
	}
	if claims.Issuer != cfg.Issuer || claims.Subject != operatorID.String() {
		t.Fatalf("registered claims not preserved: %+v", claims.RegisteredClaims)
	}

	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.Time)
	}
}

func TestParseOperatorTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintOperatorToken(cfg, time.Now(), OperatorTokenPayload{OperatorID: uuid.New(), Role: enums.MemberRoleStaff})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other := cfg
	other.Secret = "other"
	if _, err := ParseOperatorToken(other, token); err == nil {
		t.Fatal("expected signature mismatch")
	}

	tampered := token[:strings.LastIndex(token, ".")+1] + "AAAA"
	if _, err := ParseOperatorToken(cfg, tampered); err == nil {
		t.Fatal("expected tampered token to fail")
	}
}

func TestParseOperatorTokenRejectsExpiredAndForeignIssuer(t *testing.T) {
	cfg := testJWTConfig()
	expired, err := MintOperatorToken(cfg, time.Now().Add(-2*time.Hour), OperatorTokenPayload{OperatorID: uuid.New(), Role: enums.MemberRoleStaff})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseOperatorToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	foreign := cfg
	foreign.Issuer = "someone-else"
	token, err := MintOperatorToken(foreign, time.Now(), OperatorTokenPayload{OperatorID: uuid.New(), Role: enums.MemberRoleStaff})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseOperatorToken(cfg, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestMintOperatorTokenValidatesPayload(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintOperatorToken(cfg, time.Now(), OperatorTokenPayload{Role: enums.MemberRoleAdmin}); err == nil {
		t.Fatal("expected missing operator id to fail")
	}
	if _, err := MintOperatorToken(cfg, time.Now(), OperatorTokenPayload{OperatorID: uuid.New(), Role: "root"}); err == nil {
		t.Fatal("expected invalid role to fail")
	}
	if _, err := MintOperatorToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, time.Now(), OperatorTokenPayload{OperatorID: uuid.New(), Role: enums.MemberRoleAdmin}); err == nil {
		t.Fatal("expected missing secret to fail")
	}
}
