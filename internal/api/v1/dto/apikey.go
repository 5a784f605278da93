package dto

import (
	"time"

	"app/internal/model"
)

// CreateAPIKeyRequest is the body of POST /keys.
type CreateAPIKeyRequest struct {
	Name           *string  `json:"name" validate:"omitempty,max=100"`
	Type           string   `json:"type" validate:"required,oneof=secret public"`
	AllowedOrigins []string `json:"allowed_origins" validate:"omitempty,dive,url"`
}

// UpdateAPIKeyRequest is the body of PATCH /keys/{id}.
type UpdateAPIKeyRequest struct {
	AllowedOrigins []string `json:"allowed_origins" validate:"required,dive,url"`
}

// APIKeyResponse is the API shape of an API key. The key material itself
// never appears here, only the display prefix.
type APIKeyResponse struct {
	ID             string     `json:"id"`
	KeyPrefix      string     `json:"key_prefix"`
	Name           *string    `json:"name,omitempty"`
	Type           string     `json:"type"`
	AllowedOrigins []string   `json:"allowed_origins,omitempty"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewAPIKeyResponse maps a model key to its API shape.
func NewAPIKeyResponse(k *model.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:             k.ID,
		KeyPrefix:      k.KeyPrefix,
		Name:           k.Name,
		Type:           string(k.Type),
		AllowedOrigins: k.AllowedOrigins,
		LastUsedAt:     k.LastUsedAt,
		CreatedAt:      k.CreatedAt,
	}
}

// CreateAPIKeyResponse is returned once on creation with the full key.
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}
