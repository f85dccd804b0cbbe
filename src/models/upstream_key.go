package models

import (
	"time"

	"github.com/google/uuid"
)

// UpstreamKey represents a concrete access key on a backend server. Its
// secret is stored encrypted at rest when an encryption key is configured.
type UpstreamKey struct {
	ID        uuid.UUID `json:"id"`
	ServerID  uuid.UUID `json:"server_id"`
	Name      string    `json:"name"`
	Cipher    string    `json:"cipher"`
	Secret    string    `json:"secret,omitempty"`
	Port      int       `json:"port"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is an upstream key joined with the server fields dispatch needs.
// Eligible members are the only candidates for selection.
type Member struct {
	KeyID        uuid.UUID
	ServerID     uuid.UUID
	ServerName   string
	Hostname     string
	Port         int
	Cipher       string
	Secret       string
	KeyActive    bool
	ServerActive bool
}

// Eligible reports whether the member may serve a connection
func (m Member) Eligible() bool {
	return m.KeyActive && m.ServerActive
}
