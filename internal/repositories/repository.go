package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Repository groups all domain repositories behind one handle
type Repository interface {
	// Catalog (read-mostly)
	Course() CourseRepository
	Lesson() LessonRepository

	// Checkout
	Coupon() CouponRepository
	Order() OrderRepository

	// Enrollment and progress
	Enrollment() EnrollmentRepository
	QuizSubmission() QuizSubmissionRepository

	// User directory (postgres or casdoor)
	User() UserRepository

	// WithTransaction runs fn inside a database transaction. Repository methods
	// accept the tx handle; a nil tx means the default connection.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
