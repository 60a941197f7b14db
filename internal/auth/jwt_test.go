package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestTokenRoundTrip(t *testing.T) {
	a := New("test-secret")
	token, err := a.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := a.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "ops" || claims.Role != "admin" {
		t.Errorf("claims: got %q/%q", claims.Subject, claims.Role)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := New("secret-a").GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := New("secret-b").Validate(token); err == nil {
		t.Error("token signed with another secret must not validate")
	}
}

func middlewareProbe(a *Authenticator, header string) int {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := a.Middleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec.Code
}

func TestMiddlewareEnforcement(t *testing.T) {
	a := New("test-secret")
	token, err := a.GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if code := middlewareProbe(a, "Bearer "+token); code != http.StatusOK {
		t.Errorf("valid token: got %d, want 200", code)
	}
	if code := middlewareProbe(a, ""); code != http.StatusUnauthorized {
		t.Errorf("missing token: got %d, want 401", code)
	}
	if code := middlewareProbe(a, "Bearer garbage"); code != http.StatusUnauthorized {
		t.Errorf("garbage token: got %d, want 401", code)
	}
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	if code := middlewareProbe(New(""), ""); code != http.StatusOK {
		t.Errorf("disabled guard: got %d, want 200", code)
	}
}
