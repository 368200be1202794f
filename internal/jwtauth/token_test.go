package jwtauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueProducesExpectedClaims(t *testing.T) {
	cache := NewScopeCache(time.Minute)
	cache.Set("epr-adapter", "hl7.write")

	iss := &Issuer{Key: "secret", Issuer: "dhos-connector", Audience: "epr-adapter", Expiry: 5 * time.Minute, Scopes: cache}
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	tok, err := iss.Issue(now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (any, error) { return []byte("secret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "dhos-connector" || claims["aud"] != "epr-adapter" || claims["scope"] != "hl7.write" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssueFailsInProductionWithoutScope(t *testing.T) {
	cache := NewScopeCache(time.Minute)
	iss := &Issuer{Key: "secret", Issuer: "dhos-connector", Audience: "epr-adapter", Expiry: time.Minute, Scopes: cache, Production: true}
	if _, err := iss.Issue(time.Now()); err != ErrScopeUnavailable {
		t.Fatalf("expected ErrScopeUnavailable, got %v", err)
	}
}
