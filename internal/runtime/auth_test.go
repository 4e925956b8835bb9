package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestSignAndVerifyJWT(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := SignJWT("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	var gotUser string
	handler := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		gotUser = c.Get("user_id").(string)
		sub, ok := SubjectFromContext(c.Request().Context())
		if !ok || sub != "user-1" {
			t.Fatalf("subject not propagated to context: %q %v", sub, ok)
		}
		return c.NoContent(http.StatusOK)
	})
	if err := handler(ctx); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if gotUser != "user-1" {
		t.Fatalf("expected user-1, got %q", gotUser)
	}
}

func TestAuthCookieAccepted(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := SignJWT("user-2", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: tok})
	ctx := e.NewContext(req, httptest.NewRecorder())

	handler := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(ctx); err != nil {
		t.Fatalf("cookie auth failed: %v", err)
	}
}

func TestRejectsMissingAndInvalidTokens(t *testing.T) {
	secret := []byte("test-secret")
	e := echo.New()
	handler := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := handler(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %#v", err)
	}

	wrong, err := SignJWT("user-3", []byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+wrong)
	ctx = e.NewContext(req, httptest.NewRecorder())
	err = handler(ctx)
	httpErr, ok = err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %#v", err)
	}

	expired, err := SignJWT("user-4", secret, -time.Minute)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	ctx = e.NewContext(req, httptest.NewRecorder())
	err = handler(ctx)
	httpErr, ok = err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %#v", err)
	}
}
