package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/homecare/homecare/internal/platform/apperror"
)

func TestVerify_RoundTrip(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Sign(Identity{ActorID: "nurse-1", Role: RoleNurse}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.ActorID != "nurse-1" {
		t.Errorf("expected actor nurse-1, got %s", id.ActorID)
	}
	if id.Role != RoleNurse {
		t.Errorf("expected role nurse, got %s", id.Role)
	}
}

func TestVerify_RejectsEmptyToken(t *testing.T) {
	v := NewVerifier("test-secret")

	_, err := v.Verify("")
	if !apperror.IsKind(err, apperror.KindAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	issuer := NewVerifier("secret-a")
	verifier := NewVerifier("secret-b")

	token, _ := issuer.Sign(Identity{ActorID: "patient-1", Role: RolePatient}, time.Hour)
	_, err := verifier.Verify(token)
	if !apperror.IsKind(err, apperror.KindAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	v := NewVerifier("test-secret")

	token, _ := v.Sign(Identity{ActorID: "patient-1", Role: RolePatient}, -time.Minute)
	_, err := v.Verify(token)
	if !apperror.IsKind(err, apperror.KindAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestVerify_RejectsUnknownRole(t *testing.T) {
	v := NewVerifier("test-secret")

	token, _ := v.Sign(Identity{ActorID: "actor-1", Role: Role("superuser")}, time.Hour)
	_, err := v.Verify(token)
	if !apperror.IsKind(err, apperror.KindAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestJWTMiddleware_SetsIdentityOnContext(t *testing.T) {
	v := NewVerifier("test-secret")
	token, _ := v.Sign(Identity{ActorID: "admin-1", Role: RoleAdmin}, time.Hour)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		id := IdentityFromContext(c.Request().Context())
		if id.ActorID != "admin-1" || id.Role != RoleAdmin {
			t.Errorf("unexpected identity on context: %+v", id)
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := JWTMiddleware(v)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_RejectsMissingHeader(t *testing.T) {
	v := NewVerifier("test-secret")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	err := JWTMiddleware(v)(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
