package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
)

const webhookSignatureHeader = "X-Razorpay-Signature"

type CheckoutHandler struct {
	BaseHandler
	checkout    services.CheckoutService
	enrollments services.EnrollmentService
}

func NewCheckoutHandler(checkout services.CheckoutService, enrollments services.EnrollmentService, logger utils.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		BaseHandler: NewBaseHandler(logger),
		checkout:    checkout,
		enrollments: enrollments,
	}
}

// CreateOrder opens a gateway order for the quoted total
// @Summary Create payment order
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body services.CreateOrderRequest true "Courses, client amount and optional coupon"
// @Success 201 {object} SuccessResponse{data=services.CreateOrderResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already enrolled"
// @Failure 503 {object} ErrorResponse "Gateway not configured"
// @Router /checkout/orders [post]
func (h *CheckoutHandler) CreateOrder(c *gin.Context) {
	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Creating payment order", "courses", len(req.CourseIDs))

	order, err := h.checkout.CreateOrder(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusCreated, order, "Order created")
}

// ConfirmPayment verifies the client-side signature and enrolls the order
// @Router /checkout/confirm [post]
func (h *CheckoutHandler) ConfirmPayment(c *gin.Context) {
	var req services.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Confirming payment", "order_id", req.RazorpayOrderID)

	result, err := h.checkout.ConfirmPayment(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "Payment verified and enrollment completed")
}

// @Router /checkout/failure [post]
func (h *CheckoutHandler) ReportFailure(c *gin.Context) {
	var req services.PaymentFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.checkout.ReportFailure(c.Request.Context(), userID, &req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, nil, "Payment failure recorded")
}

// CheckoutFree enrolls every course of a zero-total checkout; per-course failures are listed
// @Router /checkout/free [post]
func (h *CheckoutHandler) CheckoutFree(c *gin.Context) {
	var req services.FreeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	result, err := h.enrollments.CheckoutFree(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "")
}

// Webhook receives gateway events. The body must be read raw for signature checks.
// @Router /payments/webhook [post]
func (h *CheckoutHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read body", err.Error())
		return
	}

	if err := h.checkout.HandleWebhook(c.Request.Context(), body, c.GetHeader(webhookSignatureHeader)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
