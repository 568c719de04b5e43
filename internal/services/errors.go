package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyEnrolled        = errors.New("already enrolled in this course")
	ErrCouponInvalid          = errors.New("invalid or expired coupon code")
	ErrServiceUnavailable     = errors.New("service configuration error")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrPaymentVerification    = errors.New("payment verification failed")
	ErrWebhookSignature       = errors.New("invalid webhook signature")
	ErrPaymentRequired        = errors.New("course requires payment")
	ErrFreeCheckout           = errors.New("order total is zero, use free checkout")
	ErrAmountMismatch         = errors.New("amount does not match the server quote")
	ErrEmptyCart              = errors.New("no courses selected")
	ErrNotEnrolled            = errors.New("not enrolled in this course")
	ErrForbidden              = errors.New("forbidden")
	ErrQuizRequiresSubmission = errors.New("quiz and assignment lessons are completed by submission")
	ErrInvalidTransition      = models.ErrInvalidOrderTransition
)

// ValidationErrors is returned for rejected input
type ValidationErrors = validator.ValidationErrors

// NotFoundError names the missing resource
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func NewNotFoundError(resource string, id interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AlreadyEnrolledError lists the courses that blocked a batch enrollment
type AlreadyEnrolledError struct {
	CourseIDs []uint
	Titles    []string
}

func (e *AlreadyEnrolledError) Error() string {
	return fmt.Sprintf("already enrolled in: %s", strings.Join(e.Titles, ", "))
}

func (e *AlreadyEnrolledError) Unwrap() error {
	return ErrAlreadyEnrolled
}

// PermissionError describes a denied action on a resource
type PermissionError struct {
	UserID     string
	ResourceID interface{}
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID string, resourceID interface{}, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s %s: %s", e.Action, e.Resource, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}
