package models

import (
	"time"

	"github.com/google/uuid"
)

// Server represents a backend proxy server that hosts upstream keys
type Server struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	KeyCount  int       `json:"key_count"`
}
