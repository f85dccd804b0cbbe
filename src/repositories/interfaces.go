package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/keyroute/keyroute-server/src/models"
)

// AdminRepository defines the interface for admin data access
type AdminRepository interface {
	Create(ctx context.Context, admin *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, adminID uuid.UUID) error
}
