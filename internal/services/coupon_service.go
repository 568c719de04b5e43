package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

type couponService struct {
	repo         repositories.Repository
	db           *gorm.DB
	cacheManager *cache.CacheManager
	group        singleflight.Group
	logger       *slog.Logger
	validator    *validator.Validator
	now          func() time.Time
}

func NewCouponService(repo repositories.Repository, db *gorm.DB, cacheManager *cache.CacheManager, logger *slog.Logger, validator *validator.Validator) CouponService {
	if cacheManager == nil {
		cacheManager = cache.NewCacheManager(nil)
	}
	return &couponService{
		repo:         repo,
		db:           db,
		cacheManager: cacheManager,
		logger:       logger,
		validator:    validator,
		now:          time.Now,
	}
}

// ===== VALIDATION =====

func (s *couponService) Validate(ctx context.Context, code string) (*models.DiscountDescriptor, error) {
	normalized := models.NormalizeCouponCode(code)
	if normalized == "" {
		return nil, ValidationErrors{{Field: "code", Message: "is required", Rule: "required"}}
	}

	coupon, err := s.lookup(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if !coupon.IsRedeemable(s.now()) {
		s.logger.Debug("Coupon not redeemable", "code", normalized)
		return nil, ErrCouponInvalid
	}

	descriptor := coupon.Descriptor()
	return &descriptor, nil
}

// lookup reads through the coupon cache; concurrent misses for the same code
// share one database query
func (s *couponService) lookup(ctx context.Context, code string) (*models.Coupon, error) {
	v, err, _ := s.group.Do(code, func() (interface{}, error) {
		var coupon models.Coupon
		err := s.cacheManager.Coupon.CacheOrExecute(ctx, cache.CouponKey(code), &coupon, cache.CouponCacheConfig.TTL, func() (interface{}, error) {
			c, err := s.repo.Coupon().GetByCode(ctx, s.db, code)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					return nil, ErrCouponInvalid
				}
				return nil, fmt.Errorf("failed to get coupon: %w", err)
			}
			return c, nil
		})
		if err != nil {
			return nil, err
		}
		return &coupon, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Coupon), nil
}

func (s *couponService) ValidateRequest(ctx context.Context, req *ValidateCouponRequest) (*CouponValidationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if req.Subtotal != nil && req.Subtotal.IsNegative() {
		return nil, ValidationErrors{{Field: "subtotal", Message: "must not be negative", Value: req.Subtotal.String(), Rule: "min"}}
	}

	descriptor, err := s.Validate(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	resp := &CouponValidationResponse{DiscountDescriptor: *descriptor}
	if req.Subtotal != nil {
		quote := models.ApplyDiscount(*req.Subtotal, descriptor)
		resp.Subtotal = &quote.Subtotal
		resp.Discount = &quote.Discount
		resp.Total = &quote.Total
	}
	return resp, nil
}

func (s *couponService) Price(ctx context.Context, subtotal decimal.Decimal, couponCode *string) (models.Quote, error) {
	if couponCode == nil || models.NormalizeCouponCode(*couponCode) == "" {
		return models.ApplyDiscount(subtotal, nil), nil
	}

	descriptor, err := s.Validate(ctx, *couponCode)
	if err != nil {
		return models.Quote{}, err
	}
	return models.ApplyDiscount(subtotal, descriptor), nil
}

// ===== ADMINISTRATION =====

func (s *couponService) Create(ctx context.Context, req *CreateCouponRequest, adminID string) (*models.Coupon, error) {
	s.logger.Info("Creating coupon", "code", req.Code, "admin_id", adminID)

	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateCouponRules(req.DiscountType, req.DiscountValue, req.ExpiresAt); len(errs) > 0 {
		return nil, errs
	}

	coupon := &models.Coupon{
		Code:          models.NormalizeCouponCode(req.Code),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue.Round(2),
		IsActive:      true,
		ExpiresAt:     req.ExpiresAt,
		CreatedBy:     &adminID,
	}

	if err := s.repo.Coupon().Create(ctx, s.db, coupon); err != nil {
		if repositories.IsDuplicateError(err) {
			return nil, ValidationErrors{{Field: "code", Message: "already exists", Value: coupon.Code, Rule: "unique"}}
		}
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	cache.InvalidateCouponCache(ctx, s.cacheManager, coupon.Code)
	return coupon, nil
}

func (s *couponService) List(ctx context.Context, filters repositories.CouponFilters) (*CouponListResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}

	coupons, total, err := s.repo.Coupon().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}

	return &CouponListResponse{
		Coupons: coupons,
		Total:   total,
		Page:    filters.Offset/filters.Limit + 1,
		Size:    filters.Limit,
	}, nil
}

func (s *couponService) Deactivate(ctx context.Context, id uint) error {
	coupon, err := s.repo.Coupon().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return NewNotFoundError("coupon", id)
		}
		return fmt.Errorf("failed to get coupon: %w", err)
	}

	if err := s.repo.Coupon().Deactivate(ctx, s.db, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("coupon", id)
		}
		return fmt.Errorf("failed to deactivate coupon: %w", err)
	}

	cache.InvalidateCouponCache(ctx, s.cacheManager, coupon.Code)
	s.logger.Info("Coupon deactivated", "coupon_id", id, "code", coupon.Code)
	return nil
}
