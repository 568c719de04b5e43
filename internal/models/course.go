package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Course struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	Title        string          `json:"title" gorm:"not null;size:200"`
	Description  *string         `json:"description" gorm:"type:text"`
	Price        decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null;default:0"`
	Currency     string          `json:"currency" gorm:"size:3;not null;default:INR"`
	InstructorID string          `json:"instructor_id" gorm:"not null;index;size:255"`
	StudentCount int             `json:"student_count" gorm:"not null;default:0"`
	IsPublished  bool            `json:"is_published" gorm:"not null;default:false"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Lessons []Lesson `json:"lessons,omitempty" gorm:"foreignKey:CourseID"`
}

func (Course) TableName() string {
	return "courses"
}

// IsFree reports whether the course can be enrolled without payment.
func (c *Course) IsFree() bool {
	return !c.Price.IsPositive()
}
