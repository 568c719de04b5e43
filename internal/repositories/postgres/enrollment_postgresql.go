package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

type EnrollmentPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (e *EnrollmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}

// Create inserts one enrollment. A (user, course) conflict surfaces as gorm.ErrDuplicatedKey.
func (e *EnrollmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	if err := e.getDB(tx).WithContext(ctx).Create(enrollment).Error; err != nil {
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

// CreateBatch inserts all rows in one statement; either all land or none do
func (e *EnrollmentPostgreSQL) CreateBatch(ctx context.Context, tx *gorm.DB, enrollments []*models.Enrollment) error {
	if len(enrollments) == 0 {
		return nil
	}
	if err := e.getDB(tx).WithContext(ctx).Create(&enrollments).Error; err != nil {
		return fmt.Errorf("failed to create enrollments: %w", err)
	}
	return nil
}

func (e *EnrollmentPostgreSQL) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	return e.getByUserAndCourse(e.getDB(tx).WithContext(ctx), userID, courseID)
}

func (e *EnrollmentPostgreSQL) GetByUserAndCourseForUpdate(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	return e.getByUserAndCourse(e.helpers.ForUpdate(e.getDB(tx).WithContext(ctx)), userID, courseID)
}

func (e *EnrollmentPostgreSQL) getByUserAndCourse(query *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := query.
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&enrollment).Error; err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &enrollment, nil
}

func (e *EnrollmentPostgreSQL) FindExisting(ctx context.Context, tx *gorm.DB, userID string, courseIDs []uint) ([]*models.Enrollment, error) {
	if len(courseIDs) == 0 {
		return []*models.Enrollment{}, nil
	}

	var enrollments []*models.Enrollment
	if err := e.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND course_id IN ?", userID, courseIDs).
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to find existing enrollments: %w", err)
	}
	return enrollments, nil
}

func (e *EnrollmentPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	query := e.getDB(tx).WithContext(ctx).Model(&models.Enrollment{}).Where("user_id = ?", userID)
	query = e.helpers.ApplyEnrollmentFilters(query, filters.Status, filters.Completed)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count enrollments: %w", err)
	}

	var enrollments []*models.Enrollment
	query = e.helpers.ApplyEnrollmentPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&enrollments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list enrollments: %w", err)
	}

	return enrollments, total, nil
}

func (e *EnrollmentPostgreSQL) ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*models.Enrollment, error) {
	var enrollments []*models.Enrollment
	if err := e.getDB(tx).WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("course_id").
		Find(&enrollments).Error; err != nil {
		return nil, fmt.Errorf("failed to list enrollments by order: %w", err)
	}
	return enrollments, nil
}

func (e *EnrollmentPostgreSQL) UpdateProgress(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	result := e.getDB(tx).WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ?", enrollment.ID).
		Updates(map[string]interface{}{
			"progress":          enrollment.Progress,
			"completed_lessons": enrollment.CompletedLessons,
			"completed":         enrollment.Completed,
			"completed_at":      enrollment.CompletedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update enrollment progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update enrollment %d: %w", enrollment.ID, gorm.ErrRecordNotFound)
	}
	return nil
}
