package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/events"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

type enrollmentService struct {
	repo      repositories.Repository
	db        *gorm.DB
	coupons   CouponService
	carts     CartService
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewEnrollmentService(repo repositories.Repository, db *gorm.DB, coupons CouponService, carts CartService, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) EnrollmentService {
	return &enrollmentService{
		repo:      repo,
		db:        db,
		coupons:   coupons,
		carts:     carts,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// ===== FREE ENROLLMENT =====

func (s *enrollmentService) EnrollFree(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error) {
	s.logger.Info("Starting free enrollment", "user_id", userID, "course_id", courseID)

	_, err := s.repo.Enrollment().GetByUserAndCourse(ctx, s.db, userID, courseID)
	if err == nil {
		return nil, ErrAlreadyEnrolled
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}

	course, err := s.publishedCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	student, err := s.getUser(ctx, userID, "student")
	if err != nil {
		return nil, err
	}
	instructor, err := s.getUser(ctx, course.InstructorID, "instructor")
	if err != nil {
		return nil, err
	}

	if !course.IsFree() {
		if couponCode == nil {
			return nil, ErrPaymentRequired
		}
		quote, err := s.coupons.Price(ctx, course.Price, couponCode)
		if err != nil {
			return nil, err
		}
		if quote.Total.IsPositive() {
			return nil, ErrPaymentRequired
		}
	}

	enrollment := &models.Enrollment{
		UserID:           userID,
		CourseID:         course.ID,
		StudentName:      student.FullName,
		CourseTitle:      course.Title,
		Price:            course.Price,
		InstructorName:   instructor.FullName,
		Status:           models.EnrollmentApproved,
		PaymentStatus:    models.PaymentFree,
		CompletedLessons: pq.Int64Array{},
		CouponCode:       normalizedCode(couponCode),
	}

	if err := s.repo.Enrollment().Create(ctx, s.db, enrollment); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}

	s.AfterEnroll(ctx, []*models.Enrollment{enrollment})

	s.logger.Info("Free enrollment created", "enrollment_id", enrollment.ID, "user_id", userID, "course_id", courseID)
	return enrollment, nil
}

// CheckoutFree enrolls every selected course of a zero-total cart. Individual
// failures are reported without aborting the rest.
func (s *enrollmentService) CheckoutFree(ctx context.Context, userID string, req *FreeCheckoutRequest) (*FreeCheckoutResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	courseIDs := uniqueIDs(req.CourseIDs)
	if len(courseIDs) == 0 && s.carts != nil {
		cart, err := s.carts.GetCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		courseIDs = cart.CourseIDs()
	}
	if len(courseIDs) == 0 {
		return nil, ErrEmptyCart
	}

	courses, err := s.repo.Course().GetByIDs(ctx, s.db, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	byID := make(map[uint]*models.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	for _, id := range courseIDs {
		if c, ok := byID[id]; !ok || !c.IsPublished {
			return nil, NewNotFoundError("course", id)
		}
	}

	subtotal := decimal.Zero
	for _, c := range courses {
		subtotal = subtotal.Add(c.Price)
	}
	quote, err := s.coupons.Price(ctx, subtotal, req.CouponCode)
	if err != nil {
		return nil, err
	}
	if quote.Total.IsPositive() {
		return nil, ErrPaymentRequired
	}

	result := &FreeCheckoutResult{
		Enrolled: []*models.Enrollment{},
		Failed:   []FailedEnrollment{},
	}
	var enrolledIDs []uint
	for _, id := range courseIDs {
		enrollment, err := s.EnrollFree(ctx, id, userID, req.CouponCode)
		if err != nil {
			s.logger.Warn("Free checkout item failed", "user_id", userID, "course_id", id, "error", err)
			result.Failed = append(result.Failed, FailedEnrollment{
				CourseID: id,
				Title:    byID[id].Title,
				Reason:   err.Error(),
			})
			continue
		}
		result.Enrolled = append(result.Enrolled, enrollment)
		enrolledIDs = append(enrolledIDs, id)
	}

	if len(enrolledIDs) > 0 && s.carts != nil {
		if err := s.carts.RemoveCourses(ctx, userID, enrolledIDs); err != nil {
			s.logger.Warn("Failed to remove enrolled courses from cart", "user_id", userID, "error", err)
		}
	}

	s.logger.Info("Free checkout finished", "user_id", userID, "enrolled", len(result.Enrolled), "failed", len(result.Failed))
	return result, nil
}

// ===== PAID ENROLLMENT =====

func (s *enrollmentService) EnrollPaid(ctx context.Context, req *PaidEnrollmentRequest) ([]*models.Enrollment, error) {
	var enrollments []*models.Enrollment
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		enrollments, err = s.WritePaid(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.AfterEnroll(ctx, enrollments)
	return enrollments, nil
}

// WritePaid inserts one paid enrollment per item. Any existing enrollment
// fails the whole batch.
func (s *enrollmentService) WritePaid(ctx context.Context, tx *gorm.DB, req *PaidEnrollmentRequest) ([]*models.Enrollment, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	courseIDs := make([]uint, 0, len(req.Items))
	titles := make(map[uint]string, len(req.Items))
	instructorIDs := make([]string, 0, len(req.Items))
	seenInstructor := make(map[string]bool)
	for _, item := range req.Items {
		courseIDs = append(courseIDs, item.CourseID)
		titles[item.CourseID] = item.Title
		if !seenInstructor[item.InstructorID] {
			seenInstructor[item.InstructorID] = true
			instructorIDs = append(instructorIDs, item.InstructorID)
		}
	}

	existing, err := s.repo.Enrollment().FindExisting(ctx, tx, req.UserID, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing enrollments: %w", err)
	}
	if len(existing) > 0 {
		conflict := &AlreadyEnrolledError{}
		for _, e := range existing {
			title := titles[e.CourseID]
			if title == "" {
				title = e.CourseTitle
			}
			conflict.CourseIDs = append(conflict.CourseIDs, e.CourseID)
			conflict.Titles = append(conflict.Titles, title)
		}
		return nil, conflict
	}

	student, err := s.getUser(ctx, req.UserID, "student")
	if err != nil {
		return nil, err
	}

	instructors, err := s.repo.User().GetByIDs(ctx, instructorIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get instructors: %w", err)
	}
	instructorNames := make(map[string]string, len(instructors))
	for _, u := range instructors {
		instructorNames[u.ID] = u.FullName
	}

	paymentID := req.PaymentID
	orderID := req.OrderID
	enrollments := make([]*models.Enrollment, 0, len(req.Items))
	for _, item := range req.Items {
		name, ok := instructorNames[item.InstructorID]
		if !ok {
			return nil, NewNotFoundError("instructor", item.InstructorID)
		}
		enrollments = append(enrollments, &models.Enrollment{
			UserID:           req.UserID,
			CourseID:         item.CourseID,
			StudentName:      student.FullName,
			CourseTitle:      item.Title,
			Price:            item.Price,
			InstructorName:   name,
			Status:           models.EnrollmentApproved,
			PaymentStatus:    models.PaymentPaid,
			CompletedLessons: pq.Int64Array{},
			PaymentID:        &paymentID,
			OrderID:          &orderID,
			CouponCode:       normalizedCode(req.CouponCode),
		})
	}

	if err := s.repo.Enrollment().CreateBatch(ctx, tx, enrollments); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("failed to create enrollments: %w", err)
	}

	return enrollments, nil
}

// AfterEnroll runs the post-commit side effects. Failures are logged only.
func (s *enrollmentService) AfterEnroll(ctx context.Context, enrollments []*models.Enrollment) {
	for _, e := range enrollments {
		if err := s.repo.Course().IncrementStudentCount(ctx, s.db, e.CourseID, 1); err != nil {
			s.logger.Error("Failed to increment student count", "course_id", e.CourseID, "error", err)
		}

		data := events.EnrollmentCreatedData{
			EnrollmentID:  e.ID,
			UserID:        e.UserID,
			CourseID:      e.CourseID,
			PaymentStatus: string(e.PaymentStatus),
		}
		if e.OrderID != nil {
			data.OrderID = *e.OrderID
		}
		events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.EnrollmentCreated, e.UserID, data))
	}
}

// ===== QUERIES =====

func (s *enrollmentService) ListMyEnrollments(ctx context.Context, userID string, filters repositories.EnrollmentFilters) (*EnrollmentListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	enrollments, total, err := s.repo.Enrollment().ListByUser(ctx, s.db, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	return &EnrollmentListResponse{
		Enrollments: enrollments,
		Total:       total,
		Page:        filters.Offset/filters.Limit + 1,
		Size:        filters.Limit,
	}, nil
}

func (s *enrollmentService) GetEnrollment(ctx context.Context, userID string, courseID uint) (*models.Enrollment, error) {
	enrollment, err := s.repo.Enrollment().GetByUserAndCourse(ctx, s.db, userID, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("enrollment", courseID)
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment, nil
}

// ===== HELPERS =====

func (s *enrollmentService) publishedCourse(ctx context.Context, courseID uint) (*models.Course, error) {
	course, err := s.repo.Course().GetByID(ctx, s.db, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("course", courseID)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if !course.IsPublished {
		return nil, NewNotFoundError("course", courseID)
	}
	return course, nil
}

func (s *enrollmentService) getUser(ctx context.Context, userID, resource string) (*models.User, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError(resource, userID)
		}
		return nil, fmt.Errorf("failed to get %s: %w", resource, err)
	}
	return user, nil
}

func normalizedCode(code *string) *string {
	if code == nil {
		return nil
	}
	normalized := models.NormalizeCouponCode(*code)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
