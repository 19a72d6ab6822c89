package models

import "time"

// Credential is one stored ad-platform credential. Envelope holds the
// encrypted access token; plaintext never appears on this type.
type Credential struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	ExternalAccountID string    `json:"external_account_id"`
	Envelope          string    `json:"-"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsExpired reports whether the credential has passed its expiry at the
// given instant. Expired records stay in storage; they are filtered on read.
func (c *Credential) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// AccountStatus summarizes one connected account without exposing the token.
type AccountStatus struct {
	ExternalAccountID string    `json:"external_account_id"`
	Valid             bool      `json:"valid"`
	ExpiresAt         time.Time `json:"expires_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
