package models

import (
	"time"

	"github.com/google/uuid"
)

// DynamicKey represents a path-addressable access key that is resolved to one
// of its member upstream keys per connection.
type DynamicKey struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Path            string     `json:"path"`
	Algorithm       Algorithm  `json:"algorithm"`
	Prefix          PrefixType `json:"prefix,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastAccessed    *time.Time `json:"last_accessed,omitempty"`
	ConnectionCount int        `json:"connection_count"`
	MemberCount     int        `json:"member_count"`
}

// Expired reports whether the key has an expiration in the past
func (dk *DynamicKey) Expired(now time.Time) bool {
	return dk.ExpiresAt != nil && dk.ExpiresAt.Before(now)
}
