package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/adops/internal/vault"
)

// StoreCredentialHandler handles
// PUT /v1/owners/{ownerID}/accounts/{accountID}/credential.
// Called by the OAuth-callback component once it has exchanged an
// authorization code for a token and computed its expiry.
func (s *Server) StoreCredentialHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	accountID := chi.URLParam(r, "accountID")

	var req struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		ExpiresIn int64     `json:"expires_in"` // seconds; alternative to expires_at
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		if req.ExpiresIn <= 0 {
			writeError(w, http.StatusBadRequest, "expires_at or expires_in is required")
			return
		}
		expiresAt = s.clock.Now().UTC().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	cred, err := s.vault.Store(r.Context(), ownerID, req.Token, accountID, expiresAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshCredentialsGauge(r.Context())

	// Public fields only; the token is never echoed back.
	writeJSON(w, http.StatusOK, map[string]any{"data": cred})
}

// CredentialStatusHandler handles
// GET /v1/owners/{ownerID}/accounts/{accountID}/credential/status.
func (s *Server) CredentialStatusHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	accountID := chi.URLParam(r, "accountID")

	valid, err := s.vault.HasValid(r.Context(), ownerID, accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"valid": valid},
	})
}

// AccountsHandler handles GET /v1/owners/{ownerID}/accounts.
// Lists connected accounts with per-account validity; tokens are never
// serialized.
func (s *Server) AccountsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	statuses, err := s.vault.Statuses(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"accounts": statuses},
	})
}

// DisconnectHandler handles
// DELETE /v1/owners/{ownerID}/accounts/{accountID}/credential.
func (s *Server) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	accountID := chi.URLParam(r, "accountID")

	if err := s.vault.Delete(r.Context(), ownerID, accountID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshCredentialsGauge(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// PurgeOwnerHandler handles DELETE /v1/owners/{ownerID}/credentials.
// Called by the account-deletion flow to purge every credential the owner
// holds.
func (s *Server) PurgeOwnerHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")

	if err := s.vault.DeleteAll(r.Context(), ownerID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.refreshCredentialsGauge(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// refreshCredentialsGauge re-reads the stored count after any write so the
// gauge tracks deletions as well as stores.
func (s *Server) refreshCredentialsGauge(ctx context.Context) {
	if count, err := s.store.CountCredentials(ctx); err == nil {
		credentialsTotal.Set(float64(count))
	}
}

// CampaignsHandler handles
// GET /v1/owners/{ownerID}/accounts/{accountID}/campaigns.
// The consumer pattern: fetch the token from the vault immediately before
// the outbound platform call. An absent credential means the owner must
// reconnect the account, not that the request transiently failed.
func (s *Server) CampaignsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	accountID := chi.URLParam(r, "accountID")

	token, err := s.vault.Get(r.Context(), ownerID, accountID)
	if err != nil {
		if errors.Is(err, vault.ErrNoCredential) {
			writeError(w, http.StatusConflict, "reconnect_required")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	campaigns, err := s.platform.ListCampaigns(r.Context(), token, accountID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"campaigns": campaigns},
	})
}
