package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/events"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

type checkoutService struct {
	repo        repositories.Repository
	db          *gorm.DB
	gateway     payment.Gateway
	coupons     CouponService
	enrollments EnrollmentService
	carts       CartService
	publisher   events.EventPublisher
	currency    string
	logger      *slog.Logger
	validator   *validator.Validator
	now         func() time.Time
}

// NewCheckoutService builds the paid checkout flow. A nil gateway leaves every
// operation returning ErrServiceUnavailable.
func NewCheckoutService(
	repo repositories.Repository,
	db *gorm.DB,
	gateway payment.Gateway,
	coupons CouponService,
	enrollments EnrollmentService,
	carts CartService,
	publisher events.EventPublisher,
	currency string,
	logger *slog.Logger,
	validator *validator.Validator,
) CheckoutService {
	if currency == "" {
		currency = "INR"
	}
	return &checkoutService{
		repo:        repo,
		db:          db,
		gateway:     gateway,
		coupons:     coupons,
		enrollments: enrollments,
		carts:       carts,
		publisher:   publisher,
		currency:    currency,
		logger:      logger,
		validator:   validator,
		now:         time.Now,
	}
}

// ===== ORDER CREATION =====

func (s *checkoutService) CreateOrder(ctx context.Context, userID string, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	s.logger.Info("Creating payment order", "user_id", userID, "courses", len(req.CourseIDs))

	if s.gateway == nil {
		return nil, ErrServiceUnavailable
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	courseIDs := uniqueIDs(req.CourseIDs)
	courses, err := s.repo.Course().GetByIDs(ctx, s.db, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	byID := make(map[uint]*models.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}

	items := make([]models.CartItem, 0, len(courseIDs))
	subtotal := decimal.Zero
	for _, id := range courseIDs {
		c, ok := byID[id]
		if !ok || !c.IsPublished {
			return nil, NewNotFoundError("course", id)
		}
		items = append(items, models.CartItem{
			CourseID:     c.ID,
			Title:        c.Title,
			Price:        c.Price,
			InstructorID: c.InstructorID,
		})
		subtotal = subtotal.Add(c.Price)
	}

	existing, err := s.repo.Enrollment().FindExisting(ctx, s.db, userID, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing enrollments: %w", err)
	}
	if len(existing) > 0 {
		conflict := &AlreadyEnrolledError{}
		for _, e := range existing {
			conflict.CourseIDs = append(conflict.CourseIDs, e.CourseID)
			conflict.Titles = append(conflict.Titles, byID[e.CourseID].Title)
		}
		return nil, conflict
	}

	quote, err := s.coupons.Price(ctx, subtotal, req.CouponCode)
	if err != nil {
		return nil, err
	}
	if !quote.Total.IsPositive() {
		return nil, ErrFreeCheckout
	}
	if !req.Amount.Equal(quote.Total) {
		s.logger.Warn("Client amount does not match quote", "user_id", userID, "amount", req.Amount.String(), "total", quote.Total.String())
		return nil, ErrAmountMismatch
	}

	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	gatewayOrder, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   quote.Total,
		Currency: s.currency,
		Receipt:  receipt,
		Notes:    map[string]string{"user_id": userID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	courseIDList := make(pq.Int64Array, len(courseIDs))
	for i, id := range courseIDs {
		courseIDList[i] = int64(id)
	}

	order := &models.PaymentOrder{
		GatewayOrderID: gatewayOrder.ID,
		Receipt:        receipt,
		UserID:         userID,
		CourseIDs:      courseIDList,
		Items:          datatypes.JSONSlice[models.CartItem](items),
		Subtotal:       quote.Subtotal,
		Discount:       quote.Discount,
		Amount:         quote.Total,
		Currency:       s.currency,
		CouponCode:     normalizedCode(req.CouponCode),
		Status:         models.OrderCreated,
	}
	if err := s.repo.Order().Create(ctx, s.db, order); err != nil {
		return nil, fmt.Errorf("failed to save payment order: %w", err)
	}

	events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderCreated, userID, events.OrderEventData{
		OrderID:  order.GatewayOrderID,
		UserID:   userID,
		Amount:   order.Amount.String(),
		Currency: order.Currency,
	}))

	s.logger.Info("Payment order created", "order_id", order.GatewayOrderID, "user_id", userID, "amount", order.Amount.String())

	return &CreateOrderResponse{
		OrderID:     gatewayOrder.ID,
		KeyID:       s.gateway.KeyID(),
		Amount:      quote.Total,
		AmountMinor: payment.ToMinorUnits(quote.Total),
		Currency:    s.currency,
		Receipt:     receipt,
		Quote:       quote,
	}, nil
}

// ===== CONFIRMATION =====

func (s *checkoutService) ConfirmPayment(ctx context.Context, userID string, req *ConfirmPaymentRequest) (*OrderResultResponse, error) {
	if s.gateway == nil {
		return nil, ErrServiceUnavailable
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	order, err := s.ownedOrder(ctx, userID, req.RazorpayOrderID, "confirm")
	if err != nil {
		return nil, err
	}

	if !s.gateway.VerifyPaymentSignature(order.GatewayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		s.logger.Warn("Payment signature rejected", "order_id", order.GatewayOrderID, "user_id", userID)
		return nil, ErrPaymentVerification
	}

	return s.FinalizeOrder(ctx, order.GatewayOrderID, req.RazorpayPaymentID)
}

// ReportFailure records a client-side payment failure. It never overrides a
// paid order.
func (s *checkoutService) ReportFailure(ctx context.Context, userID string, req *PaymentFailureRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	if _, err := s.ownedOrder(ctx, userID, req.OrderID, "report_failure"); err != nil {
		return err
	}

	reason := "payment failed"
	if req.Description != "" {
		reason = req.Description
	} else if req.Code != "" {
		reason = req.Code
	}

	return s.markFailed(ctx, req.OrderID, reason)
}

// ===== WEBHOOK =====

func (s *checkoutService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if s.gateway == nil {
		return ErrServiceUnavailable
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return ErrWebhookSignature
	}

	event, err := payment.ParseWebhookEvent(body)
	if err != nil {
		return ValidationErrors{{Field: "payload", Message: "must be a webhook event", Rule: "format"}}
	}

	orderID := event.OrderID()
	logger := s.logger.With("event", event.Event, "order_id", orderID)

	switch event.Event {
	case payment.EventPaymentCaptured, payment.EventOrderPaid:
		if orderID == "" {
			logger.Warn("Webhook event without order id")
			return nil
		}
		_, err := s.FinalizeOrder(ctx, orderID, event.PaymentID())
		switch {
		case err == nil:
			logger.Info("Order finalized from webhook")
		case isUnknownOrder(err):
			logger.Warn("Webhook for unknown order")
		case enrollmentBlocked(err):
			logger.Warn("Webhook order could not be enrolled", "error", err)
		default:
			return err
		}
		return nil

	case payment.EventPaymentFailed:
		if orderID == "" {
			return nil
		}
		err := s.markFailed(ctx, orderID, event.FailureReason())
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil

	default:
		logger.Debug("Ignoring webhook event")
		return nil
	}
}

// ===== FINALIZATION =====

// FinalizeOrder moves a paid order to enrolled, writing its enrollments in the
// same transaction as the status change. Repeated calls return the enrollments
// of the first successful call.
func (s *checkoutService) FinalizeOrder(ctx context.Context, gatewayOrderID, paymentID string) (*OrderResultResponse, error) {
	var (
		order     *models.PaymentOrder
		written   []*models.Enrollment
		result    *OrderResultResponse
		newlyPaid bool
	)

	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, tx, gatewayOrderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderEnrolled:
			existing, err := s.repo.Enrollment().ListByOrder(ctx, tx, order.GatewayOrderID)
			if err != nil {
				return fmt.Errorf("failed to list order enrollments: %w", err)
			}
			result = &OrderResultResponse{OrderID: order.GatewayOrderID, Status: order.Status, Enrollments: existing}
			return nil
		case models.OrderEnrollmentFailed:
			return fmt.Errorf("%w: order %s was not enrolled", ErrAlreadyEnrolled, order.GatewayOrderID)
		}

		if order.Status != models.OrderPaid {
			if err := s.markPaid(order, paymentID); err != nil {
				return err
			}
			newlyPaid = true
		}

		written, err = s.enrollments.WritePaid(ctx, tx, &PaidEnrollmentRequest{
			Items:      order.Items,
			UserID:     order.UserID,
			PaymentID:  derefString(order.GatewayPaymentID),
			OrderID:    order.GatewayOrderID,
			CouponCode: order.CouponCode,
		})
		if err != nil {
			return err
		}

		if err := order.TransitionTo(models.OrderEnrolled); err != nil {
			return err
		}
		if err := s.repo.Order().Update(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to update payment order: %w", err)
		}

		result = &OrderResultResponse{OrderID: order.GatewayOrderID, Status: order.Status, Enrollments: written}
		return nil
	})
	if err != nil {
		if enrollmentBlocked(err) && order != nil && order.Status != models.OrderEnrollmentFailed {
			s.markEnrollmentFailed(ctx, gatewayOrderID, paymentID, err)
		}
		return nil, err
	}

	if len(written) > 0 {
		s.enrollments.AfterEnroll(ctx, written)

		if newlyPaid {
			events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderPaid, order.UserID, events.OrderEventData{
				OrderID:   order.GatewayOrderID,
				UserID:    order.UserID,
				PaymentID: derefString(order.GatewayPaymentID),
				Amount:    order.Amount.String(),
				Currency:  order.Currency,
			}))
		}

		if s.carts != nil {
			if err := s.carts.RemoveCourses(ctx, order.UserID, itemCourseIDs(order.Items)); err != nil {
				s.logger.Warn("Failed to remove purchased courses from cart", "user_id", order.UserID, "error", err)
			}
		}

		s.logger.Info("Order enrolled", "order_id", order.GatewayOrderID, "user_id", order.UserID, "enrollments", len(written))
	}

	return result, nil
}

func isUnknownOrder(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound) && notFound.Resource == "order"
}

// enrollmentBlocked reports finalize errors that retrying cannot fix: a
// conflicting enrollment or a snapshot source (course, student, instructor)
// that no longer exists.
func enrollmentBlocked(err error) bool {
	if errors.Is(err, ErrAlreadyEnrolled) {
		return true
	}
	return errors.Is(err, ErrNotFound) && !isUnknownOrder(err)
}

// markEnrollmentFailed records a paid order whose enrollments could not be
// written. The payment needs a manual refund.
func (s *checkoutService) markEnrollmentFailed(ctx context.Context, gatewayOrderID, paymentID string, cause error) {
	var (
		order   *models.PaymentOrder
		changed bool
	)
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, tx, gatewayOrderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return nil
		}
		changed = true
		if order.Status != models.OrderPaid {
			if err := s.markPaid(order, paymentID); err != nil {
				return err
			}
		}
		if err := order.TransitionTo(models.OrderEnrollmentFailed); err != nil {
			return err
		}
		reason := cause.Error()
		order.FailureReason = &reason
		return s.repo.Order().Update(ctx, tx, order)
	})
	if err != nil {
		s.logger.Error("Failed to mark order enrollment_failed", "order_id", gatewayOrderID, "error", err)
		return
	}
	if !changed {
		return
	}

	s.logger.Error("Paid order could not be enrolled, refund required", "order_id", gatewayOrderID, "reason", cause.Error())
	events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderEnrollmentFailed, order.UserID, events.OrderEventData{
		OrderID:   order.GatewayOrderID,
		UserID:    order.UserID,
		PaymentID: derefString(order.GatewayPaymentID),
		Amount:    order.Amount.String(),
		Currency:  order.Currency,
		Reason:    cause.Error(),
	}))
}

func (s *checkoutService) markFailed(ctx context.Context, gatewayOrderID, reason string) error {
	var (
		order   *models.PaymentOrder
		changed bool
	)
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, tx, gatewayOrderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderFailed) {
			s.logger.Info("Ignoring failure report for settled order", "order_id", gatewayOrderID, "status", order.Status)
			return nil
		}
		if err := order.TransitionTo(models.OrderFailed); err != nil {
			return err
		}
		order.FailureReason = &reason
		if err := s.repo.Order().Update(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to update payment order: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil || !changed {
		return err
	}

	events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.OrderFailed, order.UserID, events.OrderEventData{
		OrderID:  order.GatewayOrderID,
		UserID:   order.UserID,
		Amount:   order.Amount.String(),
		Currency: order.Currency,
		Reason:   reason,
	}))
	return nil
}

// ===== HELPERS =====

func (s *checkoutService) markPaid(order *models.PaymentOrder, paymentID string) error {
	if err := order.TransitionTo(models.OrderPaid); err != nil {
		return err
	}
	if paymentID != "" {
		order.GatewayPaymentID = &paymentID
	}
	now := s.now()
	order.PaidAt = &now
	order.FailureReason = nil
	return nil
}

func (s *checkoutService) lockOrder(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error) {
	order, err := s.repo.Order().GetByGatewayOrderIDForUpdate(ctx, tx, gatewayOrderID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("order", gatewayOrderID)
		}
		return nil, fmt.Errorf("failed to lock payment order: %w", err)
	}
	return order, nil
}

func (s *checkoutService) ownedOrder(ctx context.Context, userID, gatewayOrderID, action string) (*models.PaymentOrder, error) {
	order, err := s.repo.Order().GetByGatewayOrderID(ctx, s.db, gatewayOrderID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("order", gatewayOrderID)
		}
		return nil, fmt.Errorf("failed to get payment order: %w", err)
	}
	if order.UserID != userID {
		return nil, NewPermissionError(userID, gatewayOrderID, "order", action, "order belongs to another user")
	}
	return order, nil
}

func itemCourseIDs(items []models.CartItem) []uint {
	ids := make([]uint, len(items))
	for i, item := range items {
		ids[i] = item.CourseID
	}
	return ids
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
