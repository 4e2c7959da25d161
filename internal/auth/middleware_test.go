package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func TestJWTMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/private", JWTMiddleware("secret"), func(c *fiber.Ctx) error {
		if c.Locals("user_id") == nil || c.Locals("role") == nil {
			return fiber.NewError(fiber.StatusUnauthorized)
		}
		return c.SendStatus(http.StatusOK)
	})

	svc := NewService("secret", nil)

	// missing token
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}

	// valid token
	token, _ := svc.signToken("user-1", RoleCourier, accessTokenTTL)
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok")
	}

	// garbage token
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for garbage token")
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Get("/supervisors", JWTMiddleware("secret"), RequireRole(RoleSupervisor), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	svc := NewService("secret", nil)

	courierToken, _ := svc.signToken("user-1", RoleCourier, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/supervisors", nil)
	req.Header.Set("Authorization", "Bearer "+courierToken)
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden for courier, got %d", resp.StatusCode)
	}

	supervisorToken, _ := svc.signToken("user-2", RoleSupervisor, time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/supervisors", nil)
	req.Header.Set("Authorization", "Bearer "+supervisorToken)
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok for supervisor, got %d", resp.StatusCode)
	}
}

func TestBearerFromHeader(t *testing.T) {
	if bearerFromHeader("Bearer abc") != "abc" {
		t.Fatalf("expected token")
	}
	if bearerFromHeader("bearer abc") != "abc" {
		t.Fatalf("expected case-insensitive scheme")
	}
	if bearerFromHeader("Basic abc") != "" {
		t.Fatalf("expected empty for wrong scheme")
	}
	if bearerFromHeader("") != "" {
		t.Fatalf("expected empty for missing header")
	}
}
