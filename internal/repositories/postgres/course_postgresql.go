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

type CoursePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewCoursePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.CourseRepository {
	return &CoursePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (c *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

// GetByID retrieves a course by ID with caching
func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course

	err := c.cacheManager.Course.CacheOrExecute(ctx, cache.CourseKey(id), &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbCourse models.Course
		if err := db.WithContext(ctx).First(&dbCourse, id).Error; err != nil {
			return nil, fmt.Errorf("failed to get course %d: %w", id, err)
		}
		return &dbCourse, nil
	})
	if err != nil {
		return nil, err
	}

	return &course, nil
}

// GetByIDs loads courses in one query; missing ids are simply absent from the result
func (c *CoursePostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Course, error) {
	if len(ids) == 0 {
		return []*models.Course{}, nil
	}

	var courses []*models.Course
	if err := c.getDB(tx).WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&courses).Error; err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	return courses, nil
}

func (c *CoursePostgreSQL) IncrementStudentCount(ctx context.Context, tx *gorm.DB, id uint, delta int) error {
	result := c.getDB(tx).WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ?", id).
		UpdateColumn("student_count", gorm.Expr("student_count + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to increment student count: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to increment student count for course %d: %w", id, gorm.ErrRecordNotFound)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, id)
	return nil
}

func (c *CoursePostgreSQL) SyncStudentCounts(ctx context.Context, tx *gorm.DB) (int64, error) {
	result := c.getDB(tx).WithContext(ctx).Exec(`
		UPDATE courses c
		SET student_count = sub.cnt, updated_at = NOW()
		FROM (
			SELECT c2.id, COUNT(e.id) AS cnt
			FROM courses c2
			LEFT JOIN enrollments e ON e.course_id = c2.id AND e.status = ?
			WHERE c2.deleted_at IS NULL
			GROUP BY c2.id
		) sub
		WHERE c.id = sub.id AND c.student_count <> sub.cnt`, models.EnrollmentApproved)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sync student counts: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		cache.SafeInvalidatePattern(ctx, c.cacheManager.Course, "id:*")
	}
	return result.RowsAffected, nil
}
