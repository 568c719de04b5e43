package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

type OrderPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewOrderPostgreSQL(db *gorm.DB) repositories.OrderRepository {
	return &OrderPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (o *OrderPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return o.db
}

func (o *OrderPostgreSQL) Create(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error {
	if err := o.getDB(tx).WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create payment order: %w", err)
	}
	return nil
}

func (o *OrderPostgreSQL) GetByGatewayOrderID(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error) {
	return o.getByGatewayOrderID(o.getDB(tx).WithContext(ctx), gatewayOrderID)
}

// GetByGatewayOrderIDForUpdate serializes finalization of one order across the
// client confirm, the webhook and the reconciliation sweep
func (o *OrderPostgreSQL) GetByGatewayOrderIDForUpdate(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error) {
	return o.getByGatewayOrderID(o.helpers.ForUpdate(o.getDB(tx).WithContext(ctx)), gatewayOrderID)
}

func (o *OrderPostgreSQL) getByGatewayOrderID(query *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	if err := query.Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment order %s: %w", gatewayOrderID, err)
	}
	return &order, nil
}

func (o *OrderPostgreSQL) Update(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error {
	if err := o.getDB(tx).WithContext(ctx).Save(order).Error; err != nil {
		return fmt.Errorf("failed to update payment order: %w", err)
	}
	return nil
}

// List returns orders oldest first for the reconciliation sweep
func (o *OrderPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.OrderFilters) ([]*models.PaymentOrder, error) {
	query := o.getDB(tx).WithContext(ctx).Model(&models.PaymentOrder{})

	if len(filters.Statuses) > 0 {
		query = query.Where("status IN ?", filters.Statuses)
	}
	if filters.OlderThan != nil {
		query = query.Where("updated_at < ?", *filters.OlderThan)
	}
	if filters.NewerThan != nil {
		query = query.Where("created_at > ?", *filters.NewerThan)
	}
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	var orders []*models.PaymentOrder
	if err := query.Order("created_at ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment orders: %w", err)
	}
	return orders, nil
}
