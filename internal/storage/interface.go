package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/adops/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// CredentialStore defines the persistence interface for the credential
// vault.
//
// UpsertCredential MUST be atomic on the (owner_id, external_account_id)
// unique key: concurrent refreshes of the same credential rely entirely on
// the backend's conflict-aware insert-or-update; the vault performs no
// locking of its own.
type CredentialStore interface {
	// Credentials
	UpsertCredential(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	GetCredential(ctx context.Context, ownerID, externalAccountID string) (*models.Credential, error)
	ListCredentials(ctx context.Context, ownerID string) ([]*models.Credential, error)
	DeleteCredential(ctx context.Context, ownerID, externalAccountID string) error
	DeleteAllCredentials(ctx context.Context, ownerID string) error

	// Audit
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// Metrics helpers
	CountCredentials(ctx context.Context) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	Path   string
	Since  *time.Time
	Limit  int
	Offset int
}
