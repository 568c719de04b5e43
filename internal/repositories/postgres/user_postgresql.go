package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

// UserPostgreSQL reads the users table kept in sync with the identity provider
type UserPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewUserPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.UserRepository {
	return &UserPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (u *UserPostgreSQL) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := u.cacheManager.User.CacheOrExecute(ctx, "id:"+id, &user, cache.UserCacheConfig.TTL, func() (interface{}, error) {
		var dbUser models.User
		if err := u.db.WithContext(ctx).Where("id = ?", id).First(&dbUser).Error; err != nil {
			return nil, fmt.Errorf("failed to get user %s: %w", id, err)
		}
		return &dbUser, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDs loads users in one query; unknown ids are skipped
func (u *UserPostgreSQL) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	if len(ids) == 0 {
		return []*models.User{}, nil
	}

	var users []*models.User
	if err := u.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}
