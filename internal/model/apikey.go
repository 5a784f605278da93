package model

import "time"

// APIKeyType distinguishes server-side secret keys from browser-safe public
// keys. Public keys are restricted to their origin allow-list.
type APIKeyType string

const (
	KeyTypeSecret APIKeyType = "secret"
	KeyTypePublic APIKeyType = "public"
)

// APIKey is a stored API key. Only the sha256 hash of the key material is
// persisted; KeyPrefix is kept for display in the dashboard.
type APIKey struct {
	ID             string     `db:"id" json:"id"`
	UserID         string     `db:"user_id" json:"user_id"`
	KeyHash        string     `db:"key_hash" json:"-"`
	KeyPrefix      string     `db:"key_prefix" json:"key_prefix"`
	Name           *string    `db:"name" json:"name,omitempty"`
	Type           APIKeyType `db:"type" json:"type"`
	AllowedOrigins []string   `db:"allowed_origins" json:"allowed_origins,omitempty"`
	LastUsedAt     *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt      *time.Time `db:"revoked_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// OriginAllowed reports whether the given request origin is in the key's
// allow-list. Only meaningful for public keys.
func (k *APIKey) OriginAllowed(origin string) bool {
	for _, allowed := range k.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}
