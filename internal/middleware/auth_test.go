package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/piishield/backend/internal/config"
	"github.com/piishield/backend/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpireHours: 1}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()
	user := &models.User{ID: 42, Username: "alice", Role: models.UserRoleAdmin}

	token, err := GenerateToken(user, cfg)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token, cfg)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("expected user id 42, got %d", claims.UserID)
	}
	if claims.Username != "alice" {
		t.Errorf("expected username alice, got %q", claims.Username)
	}
	if claims.Role != models.UserRoleAdmin {
		t.Errorf("expected admin role, got %v", claims.Role)
	}
	if claims.Issuer != "piishield" {
		t.Errorf("unexpected issuer %q", claims.Issuer)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	user := &models.User{ID: 1, Username: "alice"}

	token, err := GenerateToken(user, cfg)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	other := &config.Config{JWTSecret: "different-secret", JWTExpireHours: 1}
	if _, err := ParseToken(token, other); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpireHours: -1}
	user := &models.User{ID: 1, Username: "alice"}

	token, err := GenerateToken(user, cfg)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ParseToken(token, testConfig()); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestAuthRequiredRejectsMissingAndMalformedHeaders(t *testing.T) {
	cfg := testConfig()
	app := fiber.New()
	app.Get("/protected", AuthRequired(cfg), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != fiber.StatusUnauthorized {
				t.Errorf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}
