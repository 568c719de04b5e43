package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type EnrollmentFilters struct {
	Status    *models.EnrollmentStatus `json:"status"`
	Completed *bool                    `json:"completed"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "enrolled_at", "progress", "course_title"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

type CouponFilters struct {
	IsActive  *bool  `json:"is_active"`
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

type OrderFilters struct {
	Statuses  []models.OrderStatus `json:"statuses"`
	OlderThan *time.Time           `json:"older_than"`
	NewerThan *time.Time           `json:"newer_than"`
	Limit     int                  `json:"limit"`
}

// CourseStudentCount is one row of the derived enrollment count.
type CourseStudentCount struct {
	CourseID uint  `json:"course_id"`
	Count    int64 `json:"count"`
}

// ===== REPOSITORY INTERFACES =====

type CourseRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Course, error)

	// IncrementStudentCount runs student_count = student_count + delta in SQL
	IncrementStudentCount(ctx context.Context, tx *gorm.DB, id uint, delta int) error
	// SyncStudentCounts rewrites student_count from approved enrollments and
	// returns the number of rows corrected
	SyncStudentCounts(ctx context.Context, tx *gorm.DB) (int64, error)
}

type LessonRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Lesson, error)
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Lesson, error)
}

type CouponRepository interface {
	Create(ctx context.Context, tx *gorm.DB, coupon *models.Coupon) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Coupon, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Coupon, error)
	// Upsert inserts or replaces the coupon with the same code
	Upsert(ctx context.Context, tx *gorm.DB, coupon *models.Coupon) error
	List(ctx context.Context, tx *gorm.DB, filters CouponFilters) ([]*models.Coupon, int64, error)
	Deactivate(ctx context.Context, tx *gorm.DB, id uint) error
}

type EnrollmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
	CreateBatch(ctx context.Context, tx *gorm.DB, enrollments []*models.Enrollment) error

	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error)
	// GetByUserAndCourseForUpdate locks the row until tx ends
	GetByUserAndCourseForUpdate(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error)
	// FindExisting returns the user's enrollments among courseIDs in one query
	FindExisting(ctx context.Context, tx *gorm.DB, userID string, courseIDs []uint) ([]*models.Enrollment, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters EnrollmentFilters) ([]*models.Enrollment, int64, error)
	ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*models.Enrollment, error)

	// UpdateProgress persists progress, completed lessons and completion fields
	UpdateProgress(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
}

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error
	GetByGatewayOrderID(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error)
	GetByGatewayOrderIDForUpdate(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error)
	Update(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error
	List(ctx context.Context, tx *gorm.DB, filters OrderFilters) ([]*models.PaymentOrder, error)
}

type QuizSubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.QuizSubmission) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizSubmission, error)
	// BestScores maps lesson id to the user's best score in the enrollment
	BestScores(ctx context.Context, tx *gorm.DB, enrollmentID uint) (map[uint]float64, error)
}
