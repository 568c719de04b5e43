package repositories

import (
	"context"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

// UserRepository is read-only: this service does not own user data
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
