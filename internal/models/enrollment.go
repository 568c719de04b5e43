package models

import (
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type EnrollmentStatus string

const (
	EnrollmentApproved EnrollmentStatus = "approved"
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentRejected EnrollmentStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentFree PaymentStatus = "free"
	PaymentPaid PaymentStatus = "paid"
)

// Enrollment snapshots names and price at enrollment time; the snapshot is never refreshed.
type Enrollment struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	UserID   string `json:"user_id" gorm:"not null;size:255;uniqueIndex:uq_enrollments_user_course"`
	CourseID uint   `json:"course_id" gorm:"not null;index;uniqueIndex:uq_enrollments_user_course"`

	StudentName    string          `json:"student_name" gorm:"not null;size:100"`
	CourseTitle    string          `json:"course_title" gorm:"not null;size:200"`
	Price          decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null;default:0"`
	InstructorName string          `json:"instructor_name" gorm:"not null;size:100"`

	Status        EnrollmentStatus `json:"status" gorm:"not null;size:20;default:approved"`
	PaymentStatus PaymentStatus    `json:"payment_status" gorm:"not null;size:20"`

	Progress         int           `json:"progress" gorm:"not null;default:0"`
	CompletedLessons pq.Int64Array `json:"completed_lessons" gorm:"type:bigint[];not null;default:'{}'"`
	Completed        bool          `json:"completed" gorm:"not null;default:false"`
	CompletedAt      *time.Time    `json:"completed_at"`

	PaymentID  *string `json:"payment_id,omitempty" gorm:"size:100"`
	OrderID    *string `json:"order_id,omitempty" gorm:"size:100;index"`
	CouponCode *string `json:"coupon_code,omitempty" gorm:"size:50"`

	EnrolledAt time.Time `json:"enrolled_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

func (e *Enrollment) HasCompletedLesson(lessonID uint) bool {
	return slices.Contains(e.CompletedLessons, int64(lessonID))
}

// MarkLessonCompleted adds the lesson to the completed set. It reports false when
// the lesson was already present.
func (e *Enrollment) MarkLessonCompleted(lessonID uint) bool {
	if e.HasCompletedLesson(lessonID) {
		return false
	}
	e.CompletedLessons = append(e.CompletedLessons, int64(lessonID))
	return true
}

// CompletedLessonIDs returns the completed set as lesson ids.
func (e *Enrollment) CompletedLessonIDs() []uint {
	ids := make([]uint, 0, len(e.CompletedLessons))
	for _, id := range e.CompletedLessons {
		ids = append(ids, uint(id))
	}
	return ids
}
