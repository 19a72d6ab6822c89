package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/org/adops/internal/adplatform"
	"github.com/org/adops/internal/audit"
	"github.com/org/adops/internal/crypto"
	"github.com/org/adops/internal/storage"
	"github.com/org/adops/internal/vault"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	testKey          = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	testServiceToken = "svc-test-token"
)

// fakePlatform returns canned campaigns and records the token it was called
// with.
type fakePlatform struct {
	lastToken string
}

func (f *fakePlatform) ListCampaigns(ctx context.Context, accessToken, externalAccountID string) ([]adplatform.Campaign, error) {
	f.lastToken = accessToken
	return []adplatform.Campaign{{ID: "c1", Name: "Spring Sale", Status: "active"}}, nil
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStore, *clockwork.FakeClock, *fakePlatform) {
	t.Helper()
	cipher, err := crypto.NewCipher(testKey)
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	store := storage.NewMemoryStore()
	clock := clockwork.NewFakeClock()
	vlt := vault.New(store, cipher, clock)
	platform := &fakePlatform{}

	srv := &Server{
		store:    store,
		vault:    vlt,
		platform: platform,
		auditor:  audit.NewLogger(store),
		clock:    clock,
		cfg:      Config{ServiceToken: testServiceToken},
	}
	return srv, store, clock, platform
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
	return result
}

func storeCredential(t *testing.T, handler http.Handler, owner, account, token string, expiresAt time.Time) {
	t.Helper()
	w := doJSON(t, handler, "PUT", "/v1/owners/"+owner+"/accounts/"+account+"/credential", map[string]any{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	}, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("store failed: %d %s", w.Code, w.Body.String())
	}
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	handler := srv.BuildRouter()

	w := doJSON(t, handler, "GET", "/v1/sys/health", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", body["status"])
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	handler := srv.BuildRouter()

	w := doJSON(t, handler, "GET", "/v1/owners/u1/accounts", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	w2 := doJSON(t, handler, "GET", "/v1/owners/u1/accounts", nil, "wrong-token")
	if w2.Code != http.StatusForbidden {
		t.Errorf("expected 403 with wrong token, got %d", w2.Code)
	}
}

func TestStoreAndStatusFlow(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Hour))

	w := doJSON(t, handler, "GET", "/v1/owners/u1/accounts/acc1/credential/status", nil, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	data := body["data"].(map[string]any)
	if valid, _ := data["valid"].(bool); !valid {
		t.Error("expected valid=true after store")
	}
}

func TestStoreNeverEchoesToken(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	w := doJSON(t, handler, "PUT", "/v1/owners/u1/accounts/acc1/credential", map[string]any{
		"token":      "plaintext-token-value",
		"expires_at": clock.Now().Add(time.Hour).Format(time.RFC3339),
	}, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("store failed: %d %s", w.Code, w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("plaintext-token-value")) {
		t.Error("response must never contain the plaintext token")
	}
}

func TestStoreValidation(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	handler := srv.BuildRouter()

	w := doJSON(t, handler, "PUT", "/v1/owners/u1/accounts/acc1/credential", map[string]any{
		"token": "tokA",
	}, testServiceToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without expiry, got %d", w.Code)
	}

	w2 := doJSON(t, handler, "PUT", "/v1/owners/u1/accounts/acc1/credential", map[string]any{
		"expires_in": 3600,
	}, testServiceToken)
	if w2.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without token, got %d", w2.Code)
	}
}

func TestStoreWithExpiresIn(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	// Relative expiry, as OAuth token responses carry it.
	w := doJSON(t, handler, "PUT", "/v1/owners/u1/accounts/acc1/credential", map[string]any{
		"token":      "tokA",
		"expires_in": 3600,
	}, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("store failed: %d %s", w.Code, w.Body.String())
	}

	w2 := doJSON(t, handler, "GET", "/v1/owners/u1/accounts/acc1/credential/status", nil, testServiceToken)
	body := decodeBody(t, w2)
	if valid, _ := body["data"].(map[string]any)["valid"].(bool); !valid {
		t.Error("credential should be valid within expires_in")
	}

	// expires_in must resolve against the same clock the vault judges
	// expiry with, so advancing it past the window expires the credential.
	clock.Advance(2 * time.Hour)

	w3 := doJSON(t, handler, "GET", "/v1/owners/u1/accounts/acc1/credential/status", nil, testServiceToken)
	body = decodeBody(t, w3)
	if valid, _ := body["data"].(map[string]any)["valid"].(bool); valid {
		t.Error("credential should be expired after advancing past expires_in")
	}
}

func TestCredentialsGaugeTracksDeletes(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Hour))
	storeCredential(t, handler, "u1", "acc2", "tokB", clock.Now().Add(time.Hour))
	if got := testutil.ToFloat64(credentialsTotal); got != 2 {
		t.Fatalf("expected gauge=2 after two stores, got %v", got)
	}

	w := doJSON(t, handler, "DELETE", "/v1/owners/u1/accounts/acc1/credential", nil, testServiceToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("disconnect failed: %d", w.Code)
	}
	if got := testutil.ToFloat64(credentialsTotal); got != 1 {
		t.Errorf("expected gauge=1 after disconnect, got %v", got)
	}

	w2 := doJSON(t, handler, "DELETE", "/v1/owners/u1/credentials", nil, testServiceToken)
	if w2.Code != http.StatusNoContent {
		t.Fatalf("purge failed: %d", w2.Code)
	}
	if got := testutil.ToFloat64(credentialsTotal); got != 0 {
		t.Errorf("expected gauge=0 after purge, got %v", got)
	}
}

func TestAccountsListing(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Minute))
	storeCredential(t, handler, "u1", "acc2", "tokB", clock.Now().Add(time.Hour))

	clock.Advance(30 * time.Minute)

	w := doJSON(t, handler, "GET", "/v1/owners/u1/accounts", nil, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("accounts failed: %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	accounts := body["data"].(map[string]any)["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	valid := map[string]bool{}
	for _, a := range accounts {
		acc := a.(map[string]any)
		valid[acc["external_account_id"].(string)], _ = acc["valid"].(bool)
	}
	if valid["acc1"] {
		t.Error("acc1 should be expired")
	}
	if !valid["acc2"] {
		t.Error("acc2 should still be valid")
	}
	if bytes.Contains(w.Body.Bytes(), []byte("tokB")) {
		t.Error("account listing must never contain tokens")
	}
}

func TestDisconnectAndPurge(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Hour))
	storeCredential(t, handler, "u1", "acc2", "tokB", clock.Now().Add(time.Hour))

	w := doJSON(t, handler, "DELETE", "/v1/owners/u1/accounts/acc1/credential", nil, testServiceToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("disconnect failed: %d", w.Code)
	}

	// Disconnect is idempotent.
	w2 := doJSON(t, handler, "DELETE", "/v1/owners/u1/accounts/acc1/credential", nil, testServiceToken)
	if w2.Code != http.StatusNoContent {
		t.Errorf("repeat disconnect should succeed, got %d", w2.Code)
	}

	w3 := doJSON(t, handler, "DELETE", "/v1/owners/u1/credentials", nil, testServiceToken)
	if w3.Code != http.StatusNoContent {
		t.Fatalf("purge failed: %d", w3.Code)
	}

	w4 := doJSON(t, handler, "GET", "/v1/owners/u1/accounts", nil, testServiceToken)
	body := decodeBody(t, w4)
	if accounts, _ := body["data"].(map[string]any)["accounts"].([]any); len(accounts) != 0 {
		t.Errorf("expected no accounts after purge, got %v", accounts)
	}
}

func TestCampaignsProxy(t *testing.T) {
	srv, _, clock, platform := newTestServer(t)
	handler := srv.BuildRouter()

	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Hour))

	w := doJSON(t, handler, "GET", "/v1/owners/u1/accounts/acc1/campaigns", nil, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("campaigns failed: %d %s", w.Code, w.Body.String())
	}
	if platform.lastToken != "tokA" {
		t.Errorf("platform should be called with the decrypted token, got %q", platform.lastToken)
	}
	body := decodeBody(t, w)
	campaigns := body["data"].(map[string]any)["campaigns"].([]any)
	if len(campaigns) != 1 {
		t.Errorf("expected 1 campaign, got %d", len(campaigns))
	}
}

func TestCampaignsReconnectRequired(t *testing.T) {
	srv, _, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	// No credential at all.
	w := doJSON(t, handler, "GET", "/v1/owners/u1/accounts/acc1/campaigns", nil, testServiceToken)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for missing credential, got %d", w.Code)
	}

	// Expired credential.
	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Minute))
	clock.Advance(2 * time.Minute)

	w2 := doJSON(t, handler, "GET", "/v1/owners/u1/accounts/acc1/campaigns", nil, testServiceToken)
	if w2.Code != http.StatusConflict {
		t.Errorf("expected 409 for expired credential, got %d", w2.Code)
	}
}

func TestAuditLogRecordsRequests(t *testing.T) {
	srv, store, clock, _ := newTestServer(t)
	handler := srv.BuildRouter()

	storeCredential(t, handler, "u1", "acc1", "tokA", clock.Now().Add(time.Hour))

	entries, err := store.QueryAuditLog(context.Background(), storage.AuditFilter{})
	if err != nil {
		t.Fatalf("querying audit log: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected audit entries after a request")
	}
	last := entries[len(entries)-1]
	if last.Operation != "PUT" {
		t.Errorf("expected PUT operation, got %s", last.Operation)
	}
	if last.RequestID == "" {
		t.Error("audit entry should carry the request ID")
	}

	w := doJSON(t, handler, "GET", "/v1/sys/audit-log", nil, testServiceToken)
	if w.Code != http.StatusOK {
		t.Fatalf("audit-log endpoint failed: %d %s", w.Code, w.Body.String())
	}
}
