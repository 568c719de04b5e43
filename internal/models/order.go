package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderCreated          OrderStatus = "created"
	OrderPaid             OrderStatus = "paid"
	OrderEnrolled         OrderStatus = "enrolled"
	OrderFailed           OrderStatus = "failed"
	OrderEnrollmentFailed OrderStatus = "enrollment_failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderCreated:          {OrderPaid, OrderFailed},
	OrderFailed:           {OrderPaid, OrderFailed},
	OrderPaid:             {OrderEnrolled, OrderEnrollmentFailed},
	OrderEnrolled:         {},
	OrderEnrollmentFailed: {},
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentOrder tracks one gateway order from creation to enrollment.
type PaymentOrder struct {
	ID               uint                          `json:"id" gorm:"primaryKey"`
	GatewayOrderID   string                        `json:"gateway_order_id" gorm:"uniqueIndex;not null;size:100"`
	Receipt          string                        `json:"receipt" gorm:"not null;size:64"`
	UserID           string                        `json:"user_id" gorm:"not null;index;size:255"`
	CourseIDs        pq.Int64Array                 `json:"course_ids" gorm:"type:bigint[];not null"`
	Items            datatypes.JSONSlice[CartItem] `json:"items" gorm:"type:jsonb;not null"`
	Subtotal         decimal.Decimal               `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	Discount         decimal.Decimal               `json:"discount" gorm:"type:numeric(12,2);not null;default:0"`
	Amount           decimal.Decimal               `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency         string                        `json:"currency" gorm:"not null;size:3"`
	CouponCode       *string                       `json:"coupon_code,omitempty" gorm:"size:50"`
	Status           OrderStatus                   `json:"status" gorm:"not null;size:30"`
	GatewayPaymentID *string                       `json:"gateway_payment_id,omitempty" gorm:"size:100"`
	FailureReason    *string                       `json:"failure_reason,omitempty" gorm:"type:text"`
	PaidAt           *time.Time                    `json:"paid_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// TransitionTo moves the order to next or reports an invalid transition.
func (o *PaymentOrder) TransitionTo(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderTransition, o.Status, next)
	}
	o.Status = next
	return nil
}
