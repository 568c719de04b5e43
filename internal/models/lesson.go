package models

import (
	"time"

	"gorm.io/datatypes"
)

type LessonType string

const (
	LessonText       LessonType = "text"
	LessonVideo      LessonType = "video"
	LessonAudio      LessonType = "audio"
	LessonDocument   LessonType = "document"
	LessonEmbed      LessonType = "embed"
	LessonQuiz       LessonType = "quiz"
	LessonAssignment LessonType = "assignment"
)

func (t LessonType) IsValid() bool {
	switch t {
	case LessonText, LessonVideo, LessonAudio, LessonDocument, LessonEmbed, LessonQuiz, LessonAssignment:
		return true
	}
	return false
}

// IsGraded reports whether the lesson is completed through a scored submission.
func (t LessonType) IsGraded() bool {
	return t == LessonQuiz || t == LessonAssignment
}

// QuizQuestion is stored inline on the lesson row.
type QuizQuestion struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

type Lesson struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	CourseID    uint       `json:"course_id" gorm:"not null;index"`
	ParentID    *uint      `json:"parent_id" gorm:"index"`
	Title       string     `json:"title" gorm:"not null;size:200"`
	Type        LessonType `json:"type" gorm:"not null;size:20"`
	OrderNumber int        `json:"order_number" gorm:"not null;default:0"`
	IsRequired  bool       `json:"is_required" gorm:"not null;default:false"`
	Duration    int        `json:"duration"` // seconds

	Content   datatypes.JSON                    `json:"content" gorm:"type:jsonb"`
	Questions datatypes.JSONSlice[QuizQuestion] `json:"questions,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// StudentView returns a copy of the lesson without answer keys.
func (l Lesson) StudentView() Lesson {
	if len(l.Questions) == 0 {
		return l
	}

	questions := make(datatypes.JSONSlice[QuizQuestion], len(l.Questions))
	for i, q := range l.Questions {
		questions[i] = QuizQuestion{Text: q.Text, Options: q.Options, CorrectIndex: -1}
	}
	l.Questions = questions
	return l
}
