package payment

import (
	"encoding/json"
	"fmt"
)

// Webhook event names handled by checkout
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookEvent is the subset of the provider's webhook payload checkout needs
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity Payment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity Order `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	return &event, nil
}

// OrderID returns the gateway order id from the payment or order entity
func (e *WebhookEvent) OrderID() string {
	if e.Payload.Payment != nil && e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

func (e *WebhookEvent) PaymentID() string {
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.ID
	}
	return ""
}

// FailureReason describes a failed payment for the order record
func (e *WebhookEvent) FailureReason() string {
	if e.Payload.Payment == nil {
		return "payment failed"
	}
	p := e.Payload.Payment.Entity
	if p.ErrorDescription != "" {
		return p.ErrorDescription
	}
	if p.ErrorCode != "" {
		return p.ErrorCode
	}
	return "payment failed"
}
