package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

// CouponPostgreSQL stores coupons. Lookup caching lives in the coupon service,
// which collapses concurrent misses.
type CouponPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewCouponPostgreSQL(db *gorm.DB) repositories.CouponRepository {
	return &CouponPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (c *CouponPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}

func (c *CouponPostgreSQL) Create(ctx context.Context, tx *gorm.DB, coupon *models.Coupon) error {
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	if err := c.getDB(tx).WithContext(ctx).Create(coupon).Error; err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

func (c *CouponPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := c.getDB(tx).WithContext(ctx).First(&coupon, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get coupon %d: %w", id, err)
	}
	return &coupon, nil
}

// GetByCode matches the normalized code regardless of activity or expiry
func (c *CouponPostgreSQL) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := c.getDB(tx).WithContext(ctx).
		Where("code = ?", models.NormalizeCouponCode(code)).
		First(&coupon).Error; err != nil {
		return nil, fmt.Errorf("failed to get coupon by code: %w", err)
	}
	return &coupon, nil
}

func (c *CouponPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, coupon *models.Coupon) error {
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	err := c.getDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"discount_type", "discount_value", "is_active", "expires_at", "updated_at"}),
		}).
		Create(coupon).Error
	if err != nil {
		return fmt.Errorf("failed to upsert coupon %s: %w", coupon.Code, err)
	}
	return nil
}

func (c *CouponPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.CouponFilters) ([]*models.Coupon, int64, error) {
	query := c.getDB(tx).WithContext(ctx).Model(&models.Coupon{})

	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.Query != "" {
		query = query.Where("code LIKE ?", "%"+models.NormalizeCouponCode(filters.Query)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	var coupons []*models.Coupon
	query = c.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&coupons).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}

	return coupons, total, nil
}

func (c *CouponPostgreSQL) Deactivate(ctx context.Context, tx *gorm.DB, id uint) error {
	result := c.getDB(tx).WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to deactivate coupon %d: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
