package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/adops/pkg/models"
)

// credentialColumns must match the Scan order in scanCredential.
const credentialColumns = `id, owner_id, external_account_id, ciphertext_envelope, expires_at, created_at, updated_at`

// PostgresStore is a CredentialStore backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pgxpool connection and returns a ready store.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// --- Credentials ---

// UpsertCredential inserts a credential or, on a (owner_id,
// external_account_id) conflict, overwrites the envelope and expiry in
// place. The single INSERT ... ON CONFLICT statement is the atomicity
// guarantee the vault depends on under concurrent refreshes.
func (p *PostgresStore) UpsertCredential(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	row := p.pool.QueryRow(ctx,
		`INSERT INTO credentials (owner_id, external_account_id, ciphertext_envelope, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (owner_id, external_account_id) DO UPDATE
		 SET ciphertext_envelope = EXCLUDED.ciphertext_envelope,
		     expires_at = EXCLUDED.expires_at,
		     updated_at = NOW()
		 RETURNING `+credentialColumns,
		cred.OwnerID, cred.ExternalAccountID, cred.Envelope, cred.ExpiresAt,
	)
	stored, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("upserting credential: %w", err)
	}
	return stored, nil
}

func (p *PostgresStore) GetCredential(ctx context.Context, ownerID, externalAccountID string) (*models.Credential, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+`
		 FROM credentials
		 WHERE owner_id = $1 AND external_account_id = $2`,
		ownerID, externalAccountID,
	)
	return scanCredential(row)
}

func (p *PostgresStore) ListCredentials(ctx context.Context, ownerID string) ([]*models.Credential, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+credentialColumns+`
		 FROM credentials
		 WHERE owner_id = $1
		 ORDER BY external_account_id`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (p *PostgresStore) DeleteCredential(ctx context.Context, ownerID, externalAccountID string) error {
	// Idempotent: deleting a missing row is not an error.
	_, err := p.pool.Exec(ctx,
		`DELETE FROM credentials WHERE owner_id = $1 AND external_account_id = $2`,
		ownerID, externalAccountID,
	)
	return err
}

func (p *PostgresStore) DeleteAllCredentials(ctx context.Context, ownerID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM credentials WHERE owner_id = $1`,
		ownerID,
	)
	return err
}

func scanCredential(row pgx.Row) (*models.Credential, error) {
	var c models.Credential
	err := row.Scan(&c.ID, &c.OwnerID, &c.ExternalAccountID, &c.Envelope,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// --- Audit ---

func (p *PostgresStore) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO audit_log (request_id, timestamp, operation, path, status, response_code, response_time_ms, client_ip, metadata)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.RequestID, entry.Timestamp, entry.Operation, entry.Path,
		entry.Status, entry.ResponseCode, entry.ResponseTimeMs, entry.ClientIP, metaJSON,
	)
	return err
}

func (p *PostgresStore) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, request_id, timestamp, operation, path, status, response_code, response_time_ms, client_ip, metadata FROM audit_log WHERE 1=1`)
	args := []any{}
	n := 1
	if filter.Path != "" {
		fmt.Fprintf(&query, ` AND path LIKE $%d`, n)
		args = append(args, filter.Path+"%")
		n++
	}
	if filter.Since != nil {
		fmt.Fprintf(&query, ` AND timestamp >= $%d`, n)
		args = append(args, filter.Since)
		n++
	}
	query.WriteString(` ORDER BY timestamp DESC`)
	if filter.Limit > 0 {
		fmt.Fprintf(&query, ` LIMIT $%d`, n)
		args = append(args, filter.Limit)
		n++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&query, ` OFFSET $%d`, n)
		args = append(args, filter.Offset)
	}

	rows, err := p.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Timestamp, &e.Operation,
			&e.Path, &e.Status, &e.ResponseCode, &e.ResponseTimeMs, &e.ClientIP, &metaJSON); err != nil {
			return nil, err
		}
		json.Unmarshal(metaJSON, &e.Metadata) //nolint:errcheck
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- Metrics ---

func (p *PostgresStore) CountCredentials(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&count)
	return count, err
}
