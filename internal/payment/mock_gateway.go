package payment

import (
	"context"
	"fmt"
	"sync"
)

// MockGateway is an in-memory Gateway for tests. Signatures are real HMACs
// over the configured secrets so tests can sign with SignPayment and Sign.
type MockGateway struct {
	mu            sync.Mutex
	KeySecret     string
	WebhookSecret string
	orders        []OrderRequest
	payments      map[string][]Payment
	createErr     error
	seq           int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		KeySecret:     "test_key_secret",
		WebhookSecret: "test_webhook_secret",
		payments:      make(map[string][]Payment),
	}
}

func (m *MockGateway) KeyID() string {
	return "rzp_test_key"
}

func (m *MockGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	m.seq++
	m.orders = append(m.orders, req)
	return &Order{
		ID:       fmt.Sprintf("order_test_%d", m.seq),
		Amount:   ToMinorUnits(req.Amount),
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

func (m *MockGateway) FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Payment(nil), m.payments[orderID]...), nil
}

func (m *MockGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verify(m.KeySecret, []byte(orderID+"|"+paymentID), signature)
}

func (m *MockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(m.WebhookSecret, body, signature)
}

// AddPayment registers a payment returned by FetchOrderPayments
func (m *MockGateway) AddPayment(p Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.OrderID] = append(m.payments[p.OrderID], p)
}

// FailCreateWith makes CreateOrder return err
func (m *MockGateway) FailCreateWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

func (m *MockGateway) CreatedOrders() []OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderRequest(nil), m.orders...)
}
