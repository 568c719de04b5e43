package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/SAP-F-2025/enrollment-service/internal/config"
)

// RazorpayGateway talks to the Razorpay REST API
type RazorpayGateway struct {
	client        *resty.Client
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *slog.Logger
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type razorpayPaymentCollection struct {
	Count int       `json:"count"`
	Items []Payment `json:"items"`
}

func NewRazorpayGateway(cfg config.RazorpayConfig, logger *slog.Logger) *RazorpayGateway {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &RazorpayGateway{
		client:        client,
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

func (g *RazorpayGateway) KeyID() string {
	return g.keyID
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := map[string]interface{}{
		"amount":   ToMinorUnits(req.Amount),
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var order Order
	var apiErr razorpayErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&order).
		SetError(&apiErr).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrGatewayRequest, err)
	}
	if resp.IsError() {
		g.logger.Warn("Razorpay order creation rejected", "status", resp.StatusCode(), "code", apiErr.Error.Code)
		return nil, toGatewayError(resp, apiErr)
	}

	return &order, nil
}

func (g *RazorpayGateway) FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	var collection razorpayPaymentCollection
	var apiErr razorpayErrorResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("orderID", orderID).
		SetResult(&collection).
		SetError(&apiErr).
		Get("/orders/{orderID}/payments")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch payments: %v", ErrGatewayRequest, err)
	}
	if resp.IsError() {
		return nil, toGatewayError(resp, apiErr)
	}

	return collection.Items, nil
}

func (g *RazorpayGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verify(g.keySecret, []byte(orderID+"|"+paymentID), signature)
}

func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return verify(g.webhookSecret, body, signature)
}

func toGatewayError(resp *resty.Response, apiErr razorpayErrorResponse) *GatewayError {
	gerr := &GatewayError{
		StatusCode:  resp.StatusCode(),
		Code:        apiErr.Error.Code,
		Description: apiErr.Error.Description,
	}
	if gerr.Description == "" {
		gerr.Description = http.StatusText(resp.StatusCode())
	}
	return gerr
}
