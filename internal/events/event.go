package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	ServiceName  = "enrollment-service"
	EventVersion = "1.0"
)

type EventType string

const (
	EnrollmentCreated     EventType = "enrollment.created"
	OrderCreated          EventType = "order.created"
	OrderPaid             EventType = "order.paid"
	OrderFailed           EventType = "order.failed"
	OrderEnrollmentFailed EventType = "order.enrollment_failed"
	LessonCompleted       EventType = "lesson.completed"
	QuizSubmitted         EventType = "quiz.submitted"
	CourseCompleted       EventType = "course.completed"
)

// Event is the envelope published for every domain change.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Subject   string      `json:"subject,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType EventType, subject string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    ServiceName,
		Version:   EventVersion,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type EnrollmentCreatedData struct {
	EnrollmentID  uint   `json:"enrollment_id"`
	UserID        string `json:"user_id"`
	CourseID      uint   `json:"course_id"`
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id,omitempty"`
}

type OrderEventData struct {
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	PaymentID string `json:"payment_id,omitempty"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason,omitempty"`
}

type LessonProgressData struct {
	EnrollmentID uint    `json:"enrollment_id"`
	UserID       string  `json:"user_id"`
	CourseID     uint    `json:"course_id"`
	LessonID     uint    `json:"lesson_id,omitempty"`
	Progress     int     `json:"progress"`
	AttemptID    string  `json:"attempt_id,omitempty"`
	Score        float64 `json:"score,omitempty"`
}
