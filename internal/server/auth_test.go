package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestWithAuth(t *testing.T) {
	e := echo.New()
	secret := []byte("test-secret")
	handler := withAuth(func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get("sub").(string))
	}, secret)

	t.Run("valid token", func(t *testing.T) {
		tok, err := SignJWT("ops", secret, time.Hour)
		if err != nil {
			t.Fatalf("SignJWT: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/run", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusOK || rec.Body.String() != "ops" {
			t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/run", nil)
		rec := httptest.NewRecorder()
		err := handler(e.NewContext(req, rec))
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := SignJWT("ops", []byte("other-secret"), time.Hour)
		if err != nil {
			t.Fatalf("SignJWT: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/run", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		err = handler(e.NewContext(req, rec))
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %v", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		tok, err := SignJWT("ops", secret, -time.Hour)
		if err != nil {
			t.Fatalf("SignJWT: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/run", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		err = handler(e.NewContext(req, rec))
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %v", err)
		}
	})
}
