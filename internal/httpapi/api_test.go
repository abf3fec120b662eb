package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/events"
	"mototumen.org/internal/moderation"
	"mototumen.org/internal/store/memory"
)

// failingStore fails moderation writes when down is set.
type failingStore struct {
	*memory.Store
	down bool
}

func (s *failingStore) PersistModerationDecision(ctx context.Context, d admin.Decision) error {
	if s.down {
		return errors.New("connection refused")
	}
	return s.Store.PersistModerationDecision(ctx, d)
}

type apiClient struct {
	baseURL string
	client  *http.Client
	signer  *auth.Signer
	store   *failingStore
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	mem := memory.New()
	mem.PutUser(directory.User{ID: "100", Name: "Boss", Roles: []authz.RoleID{authz.RoleCEO}})
	mem.PutUser(directory.User{ID: "200", Name: "Admin", Roles: []authz.RoleID{authz.RoleAdmin}})
	mem.PutUser(directory.User{ID: "7", Name: "Rider", Roles: []authz.RoleID{authz.RoleUser}})
	mem.PutUser(directory.User{ID: "8", Name: "Another", Roles: []authz.RoleID{authz.RoleUser}})
	store := &failingStore{Store: mem}

	signer, err := auth.NewSigner("test-secret", "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	hub := events.NewHub()
	svc := admin.NewService(admin.StaticCatalog{Catalog: authz.DefaultCatalog()}, store, store, store, admin.WithPublisher(hub))
	api := New(svc, signer, hub, ReadyProbe{}, Options{Version: "test", RateLimitRPS: 1000, RateLimitBurst: 1000})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		signer:  signer,
		store:   store,
		t:       t,
	}
}

func (c *apiClient) token(userID string, role authz.GlobalRole) string {
	c.t.Helper()
	tok, err := c.signer.GenerateToken(userID, role, time.Minute)
	if err != nil {
		c.t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (c *apiClient) do(method, path, token string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, token, nil)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, r *http.Response, want int) {
	t.Helper()
	if r.StatusCode != want {
		defer r.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		t.Fatalf("expected %d, got %d: %v", want, r.StatusCode, body)
	}
}

func validSubmission() map[string]any {
	return map[string]any{
		"organization_name": "Moto Lab",
		"organization_type": "service",
		"description":       "Carburettor tuning",
		"address":           "Abay 10",
		"phone":             "+77010000000",
		"email":             "lab@example.com",
		"user_name":         "Rider",
		"user_email":        "rider@example.com",
	}
}

func TestHealthzIsPublic(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/healthz", nil, "")
	expectStatus(t, resp, http.StatusOK)
	body := decode[map[string]any](t, resp)
	if body["version"] != "test" {
		t.Fatalf("unexpected body: %v", body)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestV1RequiresToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/roles", nil, "")
	expectStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
	resp.Body.Close()

	resp = api.get("/v1/roles", nil, "not-a-jwt")
	expectStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()
}

func TestRolesListsAssignable(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/v1/roles", nil, api.token("200", authz.GlobalAdmin))
	expectStatus(t, resp, http.StatusOK)
	body := decode[struct {
		Roles      []authz.Role   `json:"roles"`
		Assignable []authz.RoleID `json:"assignable"`
	}](t, resp)
	if len(body.Roles) == 0 {
		t.Fatal("expected catalog roles")
	}
	for _, id := range body.Assignable {
		if id == authz.RoleCEO || id == authz.RoleAdmin {
			t.Fatalf("admin must not be offered %s", id)
		}
	}
}

func TestGrantRoleFlow(t *testing.T) {
	api := newTestAPI(t)
	adminTok := api.token("200", authz.GlobalAdmin)

	resp := api.do(http.MethodPut, "/v1/users/7/roles/moderator", adminTok, nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[admin.UserPermissions](t, resp)
	if !got.Roles.Has(authz.RoleModerator) || !got.Effective.Has(authz.PermContentModerate) {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	resp = api.do(http.MethodPut, "/v1/users/7/roles/admin", adminTok, nil)
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	if body["reason"] == "" || body["reason"] == nil {
		t.Fatalf("expected reason in body: %v", body)
	}

	resp = api.do(http.MethodDelete, "/v1/users/7/roles/moderator", adminTok, nil)
	expectStatus(t, resp, http.StatusOK)
	got = decode[admin.UserPermissions](t, resp)
	if got.Roles.Has(authz.RoleModerator) {
		t.Fatal("moderator should be revoked")
	}

	resp = api.do(http.MethodPut, "/v1/users/404/roles/moderator", adminTok, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestCustomPermissionsAreCEOOnly(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodPut, "/v1/users/7/custom-permissions/settings.edit", api.token("200", authz.GlobalAdmin), nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodPost, "/v1/users/7/custom-permissions/settings.edit/toggle", api.token("100", authz.GlobalCEO), nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[admin.UserPermissions](t, resp)
	if !got.CustomPermissions.Has("settings.edit") || !got.Effective.Has("settings.edit") {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestUserPermissionsVisibility(t *testing.T) {
	api := newTestAPI(t)
	riderTok := api.token("7", authz.GlobalUser)

	resp := api.get("/v1/users/7/permissions", nil, riderTok)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.get("/v1/users/8/permissions", nil, riderTok)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}

func TestSaveRolesRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPut, "/v1/users/7/roles", api.token("200", authz.GlobalAdmin), map[string]any{"role": "x"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.do(http.MethodPut, "/v1/users/7/roles", api.token("200", authz.GlobalAdmin), map[string]any{
		"roles": []string{"user", "shop_editor"},
	})
	expectStatus(t, resp, http.StatusOK)
	got := decode[admin.UserPermissions](t, resp)
	if !got.Roles.Has(authz.RoleShopEditor) {
		t.Fatalf("unexpected roles: %v", got.Roles.Sorted())
	}
}

func TestModerationFlow(t *testing.T) {
	api := newTestAPI(t)
	riderTok := api.token("7", authz.GlobalUser)
	ceoTok := api.token("100", authz.GlobalCEO)

	resp := api.do(http.MethodPost, "/v1/organization-requests", riderTok, validSubmission())
	expectStatus(t, resp, http.StatusCreated)
	created := decode[moderation.Request](t, resp)
	if created.Status != moderation.StatusPending || created.Submitter.ID != "7" {
		t.Fatalf("unexpected request: %+v", created)
	}
	path := "/v1/organization-requests/" + created.ID

	resp = api.get("/v1/organization-requests/counts", nil, ceoTok)
	expectStatus(t, resp, http.StatusOK)
	counts := decode[moderation.Counts](t, resp)
	if counts.All != 1 || counts.Service != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	resp = api.do(http.MethodPost, path+"/approve", riderTok, nil)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.do(http.MethodPost, path+"/approve", ceoTok, nil)
	expectStatus(t, resp, http.StatusOK)
	approved := decode[moderation.Request](t, resp)
	if approved.Status != moderation.StatusApproved || approved.ReviewedAt == nil {
		t.Fatalf("unexpected request: %+v", approved)
	}

	resp = api.do(http.MethodPost, path+"/reject", ceoTok, map[string]any{"comment": "late"})
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = api.get("/v1/directory", url.Values{"facet": {"organization"}}, riderTok)
	expectStatus(t, resp, http.StatusOK)
	listing := decode[directory.Listing](t, resp)
	if len(listing.Organizations) != 1 || len(listing.PlainUsers) != 0 {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	resp = api.do(http.MethodPost, "/v1/organization-requests/missing/archive", ceoTok, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestRejectWithoutBody(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/organization-requests", api.token("7", authz.GlobalUser), validSubmission())
	created := decode[moderation.Request](t, resp)

	resp = api.do(http.MethodPost, "/v1/organization-requests/"+created.ID+"/reject", api.token("100", authz.GlobalCEO), nil)
	expectStatus(t, resp, http.StatusOK)
	rejected := decode[moderation.Request](t, resp)
	if rejected.Status != moderation.StatusRejected || rejected.ReviewComment != "" {
		t.Fatalf("unexpected request: %+v", rejected)
	}
}

func TestSubmitValidation(t *testing.T) {
	api := newTestAPI(t)
	bad := validSubmission()
	bad["email"] = "not-an-email"
	bad["organization_type"] = "bar"

	resp := api.do(http.MethodPost, "/v1/organization-requests", api.token("7", authz.GlobalUser), bad)
	expectStatus(t, resp, http.StatusBadRequest)
	body := decode[struct {
		Problems []moderation.FieldProblem `json:"problems"`
	}](t, resp)
	if len(body.Problems) != 2 {
		t.Fatalf("expected two problems, got %+v", body.Problems)
	}
}

func TestListRequestsScopedToOwner(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/organization-requests", api.token("7", authz.GlobalUser), validSubmission())
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = api.get("/v1/organization-requests", nil, api.token("8", authz.GlobalUser))
	expectStatus(t, resp, http.StatusOK)
	if items := decode[listRequestsResponse](t, resp).Items; len(items) != 0 {
		t.Fatalf("expected no visible requests, got %d", len(items))
	}

	resp = api.get("/v1/organization-requests", url.Values{"status": {"pending"}}, api.token("100", authz.GlobalCEO))
	expectStatus(t, resp, http.StatusOK)
	if items := decode[listRequestsResponse](t, resp).Items; len(items) != 1 {
		t.Fatalf("expected one request, got %d", len(items))
	}

	resp = api.get("/v1/organization-requests", url.Values{"status": {"done"}}, api.token("100", authz.GlobalCEO))
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestPersistenceFailureIsRetryable(t *testing.T) {
	api := newTestAPI(t)
	resp := api.do(http.MethodPost, "/v1/organization-requests", api.token("7", authz.GlobalUser), validSubmission())
	created := decode[moderation.Request](t, resp)

	api.store.down = true
	resp = api.do(http.MethodPost, "/v1/organization-requests/"+created.ID+"/approve", api.token("100", authz.GlobalCEO), nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	body := decode[struct {
		Retryable bool               `json:"retryable"`
		Current   moderation.Request `json:"current"`
	}](t, resp)
	if !body.Retryable {
		t.Fatal("expected retryable flag")
	}
	if body.Current.Status != moderation.StatusPending {
		t.Fatalf("expected stored pending snapshot, got %s", body.Current.Status)
	}
}

func TestStreamIsCEOOnly(t *testing.T) {
	api := newTestAPI(t)
	resp := api.get("/v1/moderation/events", nil, api.token("7", authz.GlobalUser))
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()
}
