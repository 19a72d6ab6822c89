package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/org/adops/pkg/models"
)

// MemoryStore is an in-memory CredentialStore used by tests and by the
// server's dev fallback when no database is configured. The mutex gives it
// the same atomic-upsert property the Postgres unique key provides.
type MemoryStore struct {
	mu          sync.Mutex
	credentials map[credentialKey]*models.Credential
	audit       []*models.AuditEntry
}

type credentialKey struct {
	ownerID           string
	externalAccountID string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[credentialKey]*models.Credential),
	}
}

func (m *MemoryStore) UpsertCredential(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := credentialKey{cred.OwnerID, cred.ExternalAccountID}
	now := time.Now().UTC()

	if existing, ok := m.credentials[key]; ok {
		existing.Envelope = cred.Envelope
		existing.ExpiresAt = cred.ExpiresAt
		existing.UpdatedAt = now
		return copyCredential(existing), nil
	}

	stored := &models.Credential{
		ID:                uuid.NewString(),
		OwnerID:           cred.OwnerID,
		ExternalAccountID: cred.ExternalAccountID,
		Envelope:          cred.Envelope,
		ExpiresAt:         cred.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.credentials[key] = stored
	return copyCredential(stored), nil
}

func (m *MemoryStore) GetCredential(ctx context.Context, ownerID, externalAccountID string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialKey{ownerID, externalAccountID}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCredential(cred), nil
}

func (m *MemoryStore) ListCredentials(ctx context.Context, ownerID string) ([]*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var creds []*models.Credential
	for key, cred := range m.credentials {
		if key.ownerID == ownerID {
			creds = append(creds, copyCredential(cred))
		}
	}
	return creds, nil
}

func (m *MemoryStore) DeleteCredential(ctx context.Context, ownerID, externalAccountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.credentials, credentialKey{ownerID, externalAccountID})
	return nil
}

func (m *MemoryStore) DeleteAllCredentials(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.credentials {
		if key.ownerID == ownerID {
			delete(m.credentials, key)
		}
	}
	return nil
}

// CorruptCredential overwrites a stored envelope out-of-band. Test hook for
// exercising decrypt-failure isolation; not part of CredentialStore.
func (m *MemoryStore) CorruptCredential(ownerID, externalAccountID, envelope string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[credentialKey{ownerID, externalAccountID}]
	if !ok {
		return false
	}
	cred.Envelope = envelope
	return true
}

func (m *MemoryStore) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audit = append(m.audit, entry)
	return nil
}

func (m *MemoryStore) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*models.AuditEntry
	for _, e := range m.audit {
		if filter.Path != "" && !strings.HasPrefix(e.Path, filter.Path) {
			continue
		}
		if filter.Since != nil && e.Timestamp.Before(*filter.Since) {
			continue
		}
		entries = append(entries, e)
	}

	// Newest first, same as the Postgres query.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries, nil
}

func (m *MemoryStore) CountCredentials(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return int64(len(m.credentials)), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() {}

func copyCredential(c *models.Credential) *models.Credential {
	cp := *c
	return &cp
}
