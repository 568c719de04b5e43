package models

import (
	"time"

	"github.com/lib/pq"
)

// QuizSubmission is one graded attempt at a quiz or assignment lesson.
type QuizSubmission struct {
	ID             string        `json:"id" gorm:"primaryKey;type:uuid"`
	EnrollmentID   uint          `json:"enrollment_id" gorm:"not null;index"`
	UserID         string        `json:"user_id" gorm:"not null;size:255"`
	CourseID       uint          `json:"course_id" gorm:"not null"`
	LessonID       uint          `json:"lesson_id" gorm:"not null"`
	Answers        pq.Int64Array `json:"answers" gorm:"type:bigint[];not null"`
	CorrectCount   int           `json:"correct_count" gorm:"not null"`
	TotalQuestions int           `json:"total_questions" gorm:"not null"`
	Score          float64       `json:"score" gorm:"type:numeric(5,2);not null"`
	SubmittedAt    time.Time     `json:"submitted_at" gorm:"autoCreateTime"`
}

func (QuizSubmission) TableName() string {
	return "quiz_submissions"
}
