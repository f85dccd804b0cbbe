package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessRecord is one resolved connection: which dynamic key was asked for
// and which upstream key served it.
type AccessRecord struct {
	ID            uuid.UUID `json:"id"`
	DynamicKeyID  uuid.UUID `json:"dynamic_key_id"`
	UpstreamKeyID uuid.UUID `json:"upstream_key_id"`
	ClientIP      string    `json:"client_ip"`
	AccessedAt    time.Time `json:"accessed_at"`
}
