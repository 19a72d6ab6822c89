// Package vault maps (owner, external account) pairs to live plaintext
// ad-platform tokens, backed by an encrypted credential store. It is the
// sole reader and writer of ciphertext envelopes; callers only ever see
// plaintext tokens or ErrNoCredential.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/org/adops/internal/crypto"
	"github.com/org/adops/internal/storage"
	"github.com/org/adops/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrNoCredential is the "absent" result: no credential is stored, the
// stored one has expired, or it failed decryption (fail-closed). Callers
// must treat it as "reconnect required", not as a transient failure.
var ErrNoCredential = errors.New("no usable credential")

// AccountToken pairs a decrypted token with the external account it
// authorizes.
type AccountToken struct {
	ExternalAccountID string
	Token             string
}

// Vault is the credential lifecycle manager. Storage failures propagate as
// ordinary errors; cryptographic failures on read are downgraded to
// ErrNoCredential and surfaced through logs and the decrypt-failure counter
// instead.
type Vault struct {
	store  storage.CredentialStore
	cipher *crypto.Cipher
	clock  clockwork.Clock
}

// New creates a Vault. The clock is injected so lazy expiry is testable;
// production callers pass clockwork.NewRealClock().
func New(store storage.CredentialStore, cipher *crypto.Cipher, clock clockwork.Clock) *Vault {
	return &Vault{store: store, cipher: cipher, clock: clock}
}

// Store encrypts token and upserts the credential for
// (ownerID, externalAccountID): a second Store for the same pair overwrites
// the envelope and expiry in place. Atomicity of the insert-or-update is the
// storage backend's guarantee. Returns the stored record's public fields,
// never the plaintext.
func (v *Vault) Store(ctx context.Context, ownerID, token, externalAccountID string, expiresAt time.Time) (*models.Credential, error) {
	if ownerID == "" || externalAccountID == "" {
		return nil, errors.New("owner and external account are required")
	}
	if token == "" {
		return nil, errors.New("token must not be empty")
	}

	envelope, err := v.cipher.Encrypt(token)
	if err != nil {
		return nil, fmt.Errorf("encrypting token: %w", err)
	}

	cred, err := v.store.UpsertCredential(ctx, &models.Credential{
		OwnerID:           ownerID,
		ExternalAccountID: externalAccountID,
		Envelope:          envelope,
		ExpiresAt:         expiresAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	credentialsStored.Inc()
	return cred, nil
}

// Get returns the live plaintext token for (ownerID, externalAccountID).
// Absent, expired, and undecryptable credentials all yield ErrNoCredential;
// the record itself is left untouched. Only storage failures surface as
// other errors.
func (v *Vault) Get(ctx context.Context, ownerID, externalAccountID string) (string, error) {
	cred, err := v.store.GetCredential(ctx, ownerID, externalAccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("fetching credential: %w", err)
	}

	if cred.IsExpired(v.clock.Now()) {
		return "", ErrNoCredential
	}

	token, err := v.cipher.Decrypt(cred.Envelope)
	if err != nil {
		v.recordIntegrityIncident(cred, err)
		return "", ErrNoCredential
	}
	return token, nil
}

// GetAll returns every live token for the owner. Expired records are
// filtered; a record that fails decryption is skipped so one corrupted
// credential cannot block use of the others. Each skip is logged and
// counted.
func (v *Vault) GetAll(ctx context.Context, ownerID string) ([]AccountToken, error) {
	creds, err := v.store.ListCredentials(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	now := v.clock.Now()
	var tokens []AccountToken
	for _, cred := range creds {
		if cred.IsExpired(now) {
			continue
		}
		token, err := v.cipher.Decrypt(cred.Envelope)
		if err != nil {
			v.recordIntegrityIncident(cred, err)
			continue
		}
		tokens = append(tokens, AccountToken{
			ExternalAccountID: cred.ExternalAccountID,
			Token:             token,
		})
	}
	return tokens, nil
}

// Statuses reports per-account validity for the owner without decrypting
// or exposing any token.
func (v *Vault) Statuses(ctx context.Context, ownerID string) ([]models.AccountStatus, error) {
	creds, err := v.store.ListCredentials(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	now := v.clock.Now()
	statuses := make([]models.AccountStatus, 0, len(creds))
	for _, cred := range creds {
		statuses = append(statuses, models.AccountStatus{
			ExternalAccountID: cred.ExternalAccountID,
			Valid:             !cred.IsExpired(now),
			ExpiresAt:         cred.ExpiresAt,
			UpdatedAt:         cred.UpdatedAt,
		})
	}
	return statuses, nil
}

// Delete removes the credential for (ownerID, externalAccountID).
// Idempotent: deleting a missing credential is not an error.
func (v *Vault) Delete(ctx context.Context, ownerID, externalAccountID string) error {
	if err := v.store.DeleteCredential(ctx, ownerID, externalAccountID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// DeleteAll purges every credential for the owner. Called by the
// account-deletion flow. Idempotent.
func (v *Vault) DeleteAll(ctx context.Context, ownerID string) error {
	if err := v.store.DeleteAllCredentials(ctx, ownerID); err != nil {
		return fmt.Errorf("purging credentials: %w", err)
	}
	return nil
}

// HasValid reports whether a live credential exists for
// (ownerID, externalAccountID) without exposing the secret.
func (v *Vault) HasValid(ctx context.Context, ownerID, externalAccountID string) (bool, error) {
	_, err := v.Get(ctx, ownerID, externalAccountID)
	if err != nil {
		if errors.Is(err, ErrNoCredential) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// recordIntegrityIncident makes a failed decryption observable without
// surfacing it to the caller. Format and authentication failures are
// distinguished for security monitoring.
func (v *Vault) recordIntegrityIncident(cred *models.Credential, err error) {
	reason := "format"
	if errors.Is(err, crypto.ErrAuthentication) {
		reason = "authentication"
	}
	decryptFailures.WithLabelValues(reason).Inc()
	log.Warn().
		Str("owner_id", cred.OwnerID).
		Str("external_account_id", cred.ExternalAccountID).
		Str("reason", reason).
		Msg("credential failed decryption, treating as absent")
}
