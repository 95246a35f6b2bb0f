package models

import (
	"time"

	"github.com/google/uuid"
)

const ProviderConcept2 = "concept2"

// ExternalCredential binds a member to an external OAuth provider.
// At most one row exists per (member, provider).
type ExternalCredential struct {
	MemberID       uuid.UUID `json:"member_id"`
	Provider       string    `json:"provider"`
	ExternalUserID string    `json:"external_user_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	ExpiresAt      int64     `json:"expires_at"` // unix seconds
	Scope          string    `json:"scope,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
