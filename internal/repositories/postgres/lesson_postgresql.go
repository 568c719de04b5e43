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

type LessonPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewLessonPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.LessonRepository {
	return &LessonPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (l *LessonPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

func (l *LessonPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := l.getDB(tx).WithContext(ctx).First(&lesson, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get lesson %d: %w", id, err)
	}
	return &lesson, nil
}

// ListByCourse returns the course lessons in display order. Cached per course.
func (l *LessonPostgreSQL) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Lesson, error) {
	db := l.getDB(tx)
	var lessons []*models.Lesson

	err := l.cacheManager.Lesson.CacheOrExecute(ctx, cache.CourseLessonsKey(courseID), &lessons, cache.LessonCacheConfig.TTL, func() (interface{}, error) {
		var dbLessons []*models.Lesson
		if err := db.WithContext(ctx).
			Where("course_id = ?", courseID).
			Order("order_number ASC, id ASC").
			Find(&dbLessons).Error; err != nil {
			return nil, fmt.Errorf("failed to list lessons: %w", err)
		}
		return dbLessons, nil
	})
	if err != nil {
		return nil, err
	}

	return lessons, nil
}
