package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway payment statuses as reported by the provider
const (
	PaymentCreated    = "created"
	PaymentAuthorized = "authorized"
	PaymentCaptured   = "captured"
	PaymentRefunded   = "refunded"
	PaymentFailed     = "failed"
)

var ErrGatewayRequest = errors.New("payment gateway request failed")

// Gateway is the payment provider as seen by checkout
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
	VerifyWebhookSignature(body []byte, signature string) bool
	KeyID() string
}

type OrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Order is a gateway order. Amount is in minor units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Payment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// GatewayError carries the provider's error body
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d %s: %s", e.StatusCode, e.Code, e.Description)
}

func (e *GatewayError) Unwrap() error {
	return ErrGatewayRequest
}

// ToMinorUnits converts 12.34 to 1234
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts 1234 to 12.34
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// Sign returns hex(HMAC-SHA256(payload, secret))
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayment is the checkout signature over "order_id|payment_id"
func SignPayment(secret, orderID, paymentID string) string {
	return Sign(secret, []byte(orderID+"|"+paymentID))
}

func verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
