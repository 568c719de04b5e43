package services

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

type cartService struct {
	repo      repositories.Repository
	db        *gorm.DB
	store     cache.CartStore
	coupons   CouponService
	logger    *slog.Logger
	validator *validator.Validator
}

func NewCartService(repo repositories.Repository, db *gorm.DB, store cache.CartStore, coupons CouponService, logger *slog.Logger, validator *validator.Validator) CartService {
	return &cartService{
		repo:      repo,
		db:        db,
		store:     store,
		coupons:   coupons,
		logger:    logger,
		validator: validator,
	}
}

func (s *cartService) load(ctx context.Context, sessionID string) (*models.Cart, error) {
	if s.store == nil {
		return nil, ErrServiceUnavailable
	}
	cart, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return cart, nil
}

func (s *cartService) GetCart(ctx context.Context, sessionID string) (*CartResponse, error) {
	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return toCartResponse(cart), nil
}

func (s *cartService) AddItem(ctx context.Context, sessionID string, req *AddCartItemRequest) (*CartResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cart.Contains(req.CourseID) {
		return toCartResponse(cart), nil
	}

	course, err := s.repo.Course().GetByID(ctx, s.db, req.CourseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("course", req.CourseID)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if !course.IsPublished {
		return nil, NewNotFoundError("course", req.CourseID)
	}

	_, err = s.repo.Enrollment().GetByUserAndCourse(ctx, s.db, sessionID, course.ID)
	if err == nil {
		return nil, ErrAlreadyEnrolled
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check enrollment: %w", err)
	}

	cart.Add(models.CartItem{
		CourseID:     course.ID,
		Title:        course.Title,
		Price:        course.Price,
		InstructorID: course.InstructorID,
	})
	if err := s.store.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to save cart: %w", err)
	}

	s.logger.Info("Course added to cart", "session_id", sessionID, "course_id", course.ID)
	return toCartResponse(cart), nil
}

func (s *cartService) RemoveItem(ctx context.Context, sessionID string, courseID uint) (*CartResponse, error) {
	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if cart.Remove(courseID) {
		if err := s.store.Save(ctx, cart); err != nil {
			return nil, fmt.Errorf("failed to save cart: %w", err)
		}
	}
	return toCartResponse(cart), nil
}

func (s *cartService) Clear(ctx context.Context, sessionID string) error {
	if s.store == nil {
		return ErrServiceUnavailable
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// RemoveCourses drops enrolled courses from the cart after checkout
func (s *cartService) RemoveCourses(ctx context.Context, sessionID string, courseIDs []uint) error {
	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	changed := false
	for _, id := range courseIDs {
		if cart.Remove(id) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := s.store.Save(ctx, cart); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// Quote prices the cart. The cart itself is never modified.
func (s *cartService) Quote(ctx context.Context, sessionID string, req *CartQuoteRequest) (*CartQuoteResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	cart, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var code *string
	if req.CouponCode != "" {
		code = &req.CouponCode
	}

	quote, err := s.coupons.Price(ctx, cart.Subtotal(), code)
	if err != nil {
		return nil, err
	}

	return &CartQuoteResponse{Items: cart.Items, Quote: quote}, nil
}

func toCartResponse(cart *models.Cart) *CartResponse {
	return &CartResponse{Cart: cart, Subtotal: cart.Subtotal()}
}
