package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

// ===== CART DTOs =====

type AddCartItemRequest struct {
	CourseID uint `json:"course_id" validate:"required"`
}

type CartQuoteRequest struct {
	CouponCode string `json:"coupon_code" validate:"omitempty,coupon_code"`
}

type CartResponse struct {
	*models.Cart
	Subtotal decimal.Decimal `json:"subtotal"`
}

type CartQuoteResponse struct {
	Items []models.CartItem `json:"items"`
	models.Quote
}

// ===== COUPON DTOs =====

type ValidateCouponRequest struct {
	Code     string           `json:"code" validate:"required,max=50"`
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
}

// CouponValidationResponse is the discount descriptor, priced when a subtotal was given
type CouponValidationResponse struct {
	models.DiscountDescriptor
	Subtotal *decimal.Decimal `json:"subtotal,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
	Total    *decimal.Decimal `json:"total,omitempty"`
}

type CreateCouponRequest struct {
	Code          string              `json:"code" validate:"required,coupon_code"`
	DiscountType  models.DiscountType `json:"discount_type" validate:"required,discount_type"`
	DiscountValue decimal.Decimal     `json:"discount_value"`
	ExpiresAt     *time.Time          `json:"expires_at"`
}

type CouponListResponse struct {
	Coupons []*models.Coupon `json:"coupons"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Size    int              `json:"size"`
}

type CouponImportRowError struct {
	Row     int    `json:"row"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type CouponImportResult struct {
	Imported int                    `json:"imported"`
	Errors   []CouponImportRowError `json:"errors"`
}

// ===== ENROLLMENT DTOs =====

type EnrollFreeRequest struct {
	CourseID   uint    `json:"course_id" validate:"required"`
	CouponCode *string `json:"coupon_code" validate:"omitempty,coupon_code"`
}

// FreeCheckoutRequest enrolls the given courses, or the whole cart when CourseIDs is empty
type FreeCheckoutRequest struct {
	CourseIDs  []uint  `json:"course_ids" validate:"omitempty,max=50,dive,required"`
	CouponCode *string `json:"coupon_code" validate:"omitempty,coupon_code"`
}

type FailedEnrollment struct {
	CourseID uint   `json:"course_id"`
	Title    string `json:"title,omitempty"`
	Reason   string `json:"reason"`
}

type FreeCheckoutResult struct {
	Enrolled []*models.Enrollment `json:"enrolled"`
	Failed   []FailedEnrollment   `json:"failed"`
}

// PaidEnrollmentRequest carries the gateway proof for a batch of courses
type PaidEnrollmentRequest struct {
	Items      []models.CartItem
	UserID     string
	PaymentID  string
	OrderID    string
	CouponCode *string
}

type EnrollmentListResponse struct {
	Enrollments []*models.Enrollment `json:"enrollments"`
	Total       int64                `json:"total"`
	Page        int                  `json:"page"`
	Size        int                  `json:"size"`
}

// ===== CHECKOUT DTOs =====

type CreateOrderRequest struct {
	CourseIDs  []uint          `json:"course_ids" validate:"required,min=1,max=50,dive,required"`
	Amount     decimal.Decimal `json:"amount" validate:"money"`
	CouponCode *string         `json:"coupon_code" validate:"omitempty,coupon_code"`
}

type CreateOrderResponse struct {
	OrderID     string          `json:"order_id"`
	KeyID       string          `json:"key_id"`
	Amount      decimal.Decimal `json:"amount"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Receipt     string          `json:"receipt"`
	Quote       models.Quote    `json:"quote"`
}

type ConfirmPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

type OrderResultResponse struct {
	OrderID     string               `json:"order_id"`
	Status      models.OrderStatus   `json:"status"`
	Enrollments []*models.Enrollment `json:"enrollments"`
}

type PaymentFailureRequest struct {
	OrderID     string `json:"order_id" validate:"required"`
	Code        string `json:"code" validate:"max=100"`
	Description string `json:"description" validate:"max=500"`
}

// ===== PROGRESS DTOs =====

type CourseContentResponse struct {
	Course             *models.Course     `json:"course"`
	Enrollment         *models.Enrollment `json:"enrollment"`
	Lessons            []models.Lesson    `json:"lessons"`
	CompletedLessonIDs []uint             `json:"completed_lesson_ids"`
	Progress           int                `json:"progress"`
	Completed          bool               `json:"completed"`
}

type LessonProgressResponse struct {
	LessonID           uint   `json:"lesson_id"`
	CompletedLessonIDs []uint `json:"completed_lesson_ids"`
	Progress           int    `json:"progress"`
	Completed          bool   `json:"completed"`
}

type SubmitQuizRequest struct {
	Answers []int `json:"answers" validate:"required,max=500"`
}

type QuizResultResponse struct {
	AttemptID      string  `json:"attempt_id"`
	Score          float64 `json:"score"`
	CorrectCount   int     `json:"correct_count"`
	TotalQuestions int     `json:"total_questions"`
	Progress       int     `json:"progress"`
	Completed      bool    `json:"completed"`
}

// AttemptResultResponse is the results view of one submission, answer key included
type AttemptResultResponse struct {
	*models.QuizSubmission
	LessonTitle string                `json:"lesson_title"`
	Questions   []models.QuizQuestion `json:"questions"`
}

// ===== RECONCILIATION DTOs =====

type ReconcileReport struct {
	PaidFinalized    int   `json:"paid_finalized"`
	PendingCaptured  int   `json:"pending_captured"`
	Errors           int   `json:"errors"`
	CountsCorrected  int64 `json:"counts_corrected"`
	OrdersConsidered int   `json:"orders_considered"`
}

// ===== SERVICE INTERFACES =====

// CartService manages the per-session cart
type CartService interface {
	GetCart(ctx context.Context, sessionID string) (*CartResponse, error)
	AddItem(ctx context.Context, sessionID string, req *AddCartItemRequest) (*CartResponse, error)
	RemoveItem(ctx context.Context, sessionID string, courseID uint) (*CartResponse, error)
	Clear(ctx context.Context, sessionID string) error
	RemoveCourses(ctx context.Context, sessionID string, courseIDs []uint) error
	Quote(ctx context.Context, sessionID string, req *CartQuoteRequest) (*CartQuoteResponse, error)
}

type CouponService interface {
	// Validate returns the discount descriptor of an active, unexpired coupon
	Validate(ctx context.Context, code string) (*models.DiscountDescriptor, error)
	ValidateRequest(ctx context.Context, req *ValidateCouponRequest) (*CouponValidationResponse, error)
	// Price applies an optional coupon to a subtotal
	Price(ctx context.Context, subtotal decimal.Decimal, couponCode *string) (models.Quote, error)

	// Administration
	Create(ctx context.Context, req *CreateCouponRequest, adminID string) (*models.Coupon, error)
	List(ctx context.Context, filters repositories.CouponFilters) (*CouponListResponse, error)
	Deactivate(ctx context.Context, id uint) error
	Import(ctx context.Context, r io.Reader, adminID string) (*CouponImportResult, error)
}

type EnrollmentService interface {
	EnrollFree(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error)
	CheckoutFree(ctx context.Context, userID string, req *FreeCheckoutRequest) (*FreeCheckoutResult, error)

	// EnrollPaid writes the batch in its own transaction and applies side effects
	EnrollPaid(ctx context.Context, req *PaidEnrollmentRequest) ([]*models.Enrollment, error)
	// WritePaid writes the batch inside tx without side effects
	WritePaid(ctx context.Context, tx *gorm.DB, req *PaidEnrollmentRequest) ([]*models.Enrollment, error)
	// AfterEnroll bumps student counts and publishes events for committed rows
	AfterEnroll(ctx context.Context, enrollments []*models.Enrollment)

	ListMyEnrollments(ctx context.Context, userID string, filters repositories.EnrollmentFilters) (*EnrollmentListResponse, error)
	GetEnrollment(ctx context.Context, userID string, courseID uint) (*models.Enrollment, error)
}

type CheckoutService interface {
	CreateOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*CreateOrderResponse, error)
	ConfirmPayment(ctx context.Context, userID string, req *ConfirmPaymentRequest) (*OrderResultResponse, error)
	ReportFailure(ctx context.Context, userID string, req *PaymentFailureRequest) error
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	// FinalizeOrder enrolls a paid order exactly once
	FinalizeOrder(ctx context.Context, gatewayOrderID, paymentID string) (*OrderResultResponse, error)
}

type ProgressService interface {
	GetCourseContent(ctx context.Context, userID string, courseID uint) (*CourseContentResponse, error)
	MarkLessonComplete(ctx context.Context, userID string, courseID, lessonID uint) (*LessonProgressResponse, error)
	SubmitQuiz(ctx context.Context, userID string, courseID, lessonID uint, req *SubmitQuizRequest) (*QuizResultResponse, error)
	GetAttempt(ctx context.Context, userID, attemptID string) (*AttemptResultResponse, error)
}

type ReconciliationService interface {
	Run(ctx context.Context) (*ReconcileReport, error)
	Start() error
	Stop(ctx context.Context) error
}

// ServiceManager wires and owns all services
type ServiceManager interface {
	Initialize(ctx context.Context) error

	Cart() CartService
	Coupon() CouponService
	Enrollment() EnrollmentService
	Checkout() CheckoutService
	Progress() ProgressService
	Reconciliation() ReconciliationService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
