package audit

import (
	"context"
	"time"

	"github.com/org/adops/internal/storage"
	"github.com/org/adops/pkg/models"
)

// Logger writes structured audit entries.
type Logger struct {
	store storage.CredentialStore
}

// NewLogger creates an audit Logger.
func NewLogger(store storage.CredentialStore) *Logger {
	return &Logger{store: store}
}

// LogRequest records an API request to the audit log.
// Token material must NEVER be passed here — only request metadata.
func (l *Logger) LogRequest(ctx context.Context, entry *models.AuditEntry) {
	entry.Timestamp = time.Now().UTC()
	// Fire and forget — audit failures should not break request flow.
	_ = l.store.WriteAuditEntry(ctx, entry)
}

// Query retrieves paginated audit log entries.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error) {
	return l.store.QueryAuditLog(ctx, filter)
}
