package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func newTestGate(t *testing.T, passphrase string) *Gate {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGate(string(hash))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestHashPassphrase(t *testing.T) {
	if _, err := HashPassphrase(""); err == nil {
		t.Error("expected error for empty passphrase")
	}
	hash, err := HashPassphrase("bloc-ortho")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(hash, "bloc-ortho") {
		t.Error("hash must not contain the passphrase")
	}
	g, err := NewGate(hash)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Check("bloc-ortho"); err != nil {
		t.Errorf("expected passphrase to match: %v", err)
	}
	if err := g.Check("Bloc-ortho"); !errors.Is(err, ErrInvalidPassphrase) {
		t.Errorf("expected ErrInvalidPassphrase, got %v", err)
	}
}

func TestNewGate_RejectsPlaintext(t *testing.T) {
	if _, err := NewGate("bloc-ortho"); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
}

func TestHandler_LoginLogout(t *testing.T) {
	m := newTestManager(t)
	h := NewHandler(newTestGate(t, "bloc-ortho"), m, zerolog.Nop())
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"passphrase":"bloc-ortho","user":"Dr Ba"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	claims, err := m.Parse(resp.Token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "Dr Ba" {
		t.Errorf("expected subject Dr Ba, got %q", claims.Subject)
	}

	c, err := runMiddleware(m.Middleware(AuthSkipper), "/api/v1/logout", "Bearer "+resp.Token)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Logout(c); err != nil {
		t.Fatalf("unexpected logout error: %v", err)
	}
	if _, err := m.Parse(resp.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected token to be revoked after logout, got %v", err)
	}
}

func TestHandler_Login_WrongPassphrase(t *testing.T) {
	h := NewHandler(newTestGate(t, "bloc-ortho"), newTestManager(t), zerolog.Nop())
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"passphrase":"guess"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	expectUnauthorized(t, h.Login(e.NewContext(req, httptest.NewRecorder())))
}

func TestHandler_Logout_NoSession(t *testing.T) {
	h := NewHandler(newTestGate(t, "bloc-ortho"), newTestManager(t), zerolog.Nop())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/logout", nil), httptest.NewRecorder())
	expectUnauthorized(t, h.Logout(c))
}
