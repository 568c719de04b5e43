package casdoor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

// CasdoorConfig holds the configuration for Casdoor connection
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// UserCasdoor resolves students and instructors from the identity provider
type UserCasdoor struct {
	client *casdoorsdk.Client
	cache  *cache.CacheHelper
}

func NewUserCasdoor(config CasdoorConfig, redisClient *redis.Client) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client: client,
		cache:  cache.NewCacheHelper(redisClient, cache.UserCacheConfig.Prefix),
	}
}

// ===== CONVERSION METHODS =====

func convertCasdoorUserToModel(casdoorUser *casdoorsdk.User) *models.User {
	if casdoorUser == nil {
		return nil
	}

	var createdAt, updatedAt time.Time
	if casdoorUser.CreatedTime != "" {
		createdAt, _ = time.Parse(time.RFC3339, casdoorUser.CreatedTime)
	}
	if casdoorUser.UpdatedTime != "" {
		updatedAt, _ = time.Parse(time.RFC3339, casdoorUser.UpdatedTime)
	}

	fullName := casdoorUser.DisplayName
	if fullName == "" {
		fullName = casdoorUser.Name
	}

	user := &models.User{
		ID:        casdoorUser.Id,
		FullName:  fullName,
		Email:     casdoorUser.Email,
		Role:      convertCasdoorRolesToModel(casdoorUser),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if casdoorUser.Avatar != "" {
		avatar := casdoorUser.Avatar
		user.AvatarURL = &avatar
	}
	return user
}

// convertCasdoorRolesToModel picks the strongest role: admin, then instructor, then student
func convertCasdoorRolesToModel(casdoorUser *casdoorsdk.User) models.UserRole {
	if casdoorUser.IsAdmin {
		return models.RoleAdmin
	}

	roles := make([]models.UserRole, 0, len(casdoorUser.Roles))
	for _, casdoorRole := range casdoorUser.Roles {
		roles = append(roles, MapRole(casdoorRole.Name))
	}

	switch {
	case slices.Contains(roles, models.RoleAdmin):
		return models.RoleAdmin
	case slices.Contains(roles, models.RoleInstructor):
		return models.RoleInstructor
	default:
		return models.RoleStudent
	}
}

// MapRole maps a Casdoor role name onto a service role
func MapRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "teacher", "instructor":
		return models.RoleInstructor
	case "admin", "administrator":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}

// ===== READ OPERATIONS =====

// GetByID retrieves a user by ID; a missing user wraps repositories.ErrNotFound
func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := u.cache.CacheOrExecute(ctx, "id:"+id, &user, cache.UserCacheConfig.TTL, func() (interface{}, error) {
		casdoorUser, err := u.client.GetUserByUserId(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
		}
		if casdoorUser == nil {
			return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
		}
		return convertCasdoorUserToModel(casdoorUser), nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDs retrieves multiple users; Casdoor has no batch lookup so ids are
// resolved one by one and failures are skipped
func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		user, err := u.GetByID(ctx, id)
		if err != nil {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}
