package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	return &Client{addr: ts.URL, token: "svc-test-token", http: ts.Client()}, ts
}

func TestClientDecodesAccounts(t *testing.T) {
	var gotAuth string
	c, ts := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"accounts":[
			{"external_account_id":"acc1","valid":true,"expires_at":"2026-03-01T12:00:00Z"},
			{"external_account_id":"acc2","valid":false,"expires_at":"2026-01-01T00:00:00Z"}
		]}}`))
	})
	defer ts.Close()

	accounts, err := c.accounts("u1")
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if gotAuth != "Bearer svc-test-token" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].ExternalAccountID != "acc1" || !accounts[0].Valid {
		t.Errorf("first account decoded wrong: %+v", accounts[0])
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !accounts[0].ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, accounts[0].ExpiresAt)
	}
}

func TestClientDecodesCredentialStatus(t *testing.T) {
	c, ts := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"valid":true}}`))
	})
	defer ts.Close()

	valid, err := c.credentialStatus("u1", "acc1")
	if err != nil {
		t.Fatalf("credentialStatus: %v", err)
	}
	if !valid {
		t.Error("expected valid=true")
	}
}

func TestClientSurfacesAPIError(t *testing.T) {
	c, ts := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"errors":["reconnect_required"]}`))
	})
	defer ts.Close()

	_, err := c.credentialStatus("u1", "acc1")
	if err == nil || err.Error() != "reconnect_required" {
		t.Errorf("expected the API error message, got %v", err)
	}
}

func TestClientNoContent(t *testing.T) {
	c, ts := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "DELETE" {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	defer ts.Close()

	if err := c.disconnect("u1", "acc1"); err != nil {
		t.Errorf("disconnect on 204: %v", err)
	}
}

func TestClientDecodesAuditEntries(t *testing.T) {
	var gotQuery string
	c, ts := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"request_id":"r1","timestamp":"2026-03-01T12:00:00Z","operation":"PUT","path":"/v1/owners/u1/accounts/acc1/credential","response_code":200,"response_time_ms":4}
		]}`))
	})
	defer ts.Close()

	entries, err := c.auditLog(5, "/v1/owners")
	if err != nil {
		t.Fatalf("auditLog: %v", err)
	}
	if gotQuery != "limit=5&path=%2Fv1%2Fowners" {
		t.Errorf("unexpected query string %q", gotQuery)
	}
	if len(entries) != 1 || entries[0].Operation != "PUT" || entries[0].ResponseCode != 200 {
		t.Errorf("audit entry decoded wrong: %+v", entries)
	}
}
