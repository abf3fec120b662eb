package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
)

func newAuthAPI(t *testing.T) (*API, *auth.Signer) {
	t.Helper()
	signer, err := auth.NewSigner("test-secret", "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return &API{signer: signer}, signer
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	api, signer := newAuthAPI(t)
	token, err := signer.GenerateToken("user-1", authz.GlobalModerator, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var got auth.Principal
	handler := api.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = principal(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set(authHeader, "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got.UserID != "user-1" || got.Role != authz.GlobalModerator {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestAuthenticateAcceptsQueryToken(t *testing.T) {
	api, signer := newAuthAPI(t)
	token, err := signer.GenerateToken("100", authz.GlobalCEO, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	handler := api.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/moderation/events?access_token="+token, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	api, _ := newAuthAPI(t)
	other, err := auth.NewSigner("other-secret", "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	foreign, err := other.GenerateToken("user-1", authz.GlobalCEO, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	handler := api.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	for name, header := range map[string]string{
		"missing":       "",
		"wrong scheme":  "Basic dXNlcjpwYXNz",
		"empty bearer":  "Bearer ",
		"foreign token": "Bearer " + foreign,
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
		if header != "" {
			req.Header.Set(authHeader, header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("%s: expected WWW-Authenticate header", name)
		}
	}
}
