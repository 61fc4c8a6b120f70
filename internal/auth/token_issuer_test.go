package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "cookbook-auth",
		Audience:      "cookbook-web",
		TokenTTL:      30 * time.Minute,
		Clock:         func() time.Time { return clockNow },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueSessionToken(context.Background(), Identity{
		UserID:   "user-123",
		Username: "julia",
		Roles:    []string{RoleStaff},
	})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return clockNow }))
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "user-123" || claims.UserID != "user-123" {
		t.Fatalf("unexpected subject %s / %s", claims.Subject, claims.UserID)
	}
	if claims.Username != "julia" {
		t.Fatalf("unexpected username %s", claims.Username)
	}
	if claims.Issuer != "cookbook-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "cookbook-web" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
	if !claims.Privileged() {
		t.Fatalf("expected staff role to be privileged")
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{TokenTTL: 30 * time.Minute})
	if err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestTokenIssuerRejectsMissingSubject(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret")})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken(context.Background(), Identity{UserID: "  "}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}

func TestIssuedTokensPassValidation(t *testing.T) {
	secret := []byte("another-secret")
	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: secret, TokenTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	validator, err := NewSessionValidator(SessionValidatorConfig{SigningSecret: secret})
	if err != nil {
		t.Fatalf("unexpected validator error: %v", err)
	}

	tokenString, _, err := issuer.IssueSessionToken(context.Background(), Identity{UserID: "user-321"})
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	claims, err := validator.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if claims.UserID != "user-321" || claims.Privileged() {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := validator.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}
