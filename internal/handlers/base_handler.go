package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/storage"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
)

// SuccessResponse is the envelope of every successful response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the envelope of every failed response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) log(c *gin.Context) utils.Logger {
	return utils.GetLogger(c, h.logger)
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	h.log(c).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	h.log(c).Error(msg, append(args, "error", err)...)
}

func (h *BaseHandler) respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

func (h *BaseHandler) fail(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Message: message, Details: details})
}

func (h *BaseHandler) badRequest(c *gin.Context, err error) {
	h.fail(c, http.StatusBadRequest, "Invalid request payload", err.Error())
}

// currentUserID reads the id set by the auth middleware and answers 401 when absent.
func (h *BaseHandler) currentUserID(c *gin.Context) (string, bool) {
	userID, err := GetUserIDFromContext(c)
	if err != nil || userID == "" {
		h.fail(c, http.StatusUnauthorized, "User not authenticated", nil)
		return "", false
	}
	return userID, true
}

// parseIDParam answers 400 and returns 0 when the path param is not a positive integer.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		h.fail(c, http.StatusBadRequest, "Invalid "+param, c.Param(param))
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrs services.ValidationErrors
	var alreadyEnrolled *services.AlreadyEnrolledError
	var notFound *services.NotFoundError
	var permissionErr *services.PermissionError
	var gatewayErr *payment.GatewayError

	switch {
	case errors.As(err, &validationErrs):
		h.fail(c, http.StatusBadRequest, "Validation failed", validationErrs)
	case errors.As(err, &alreadyEnrolled):
		h.fail(c, http.StatusConflict, err.Error(), gin.H{"course_ids": alreadyEnrolled.CourseIDs, "titles": alreadyEnrolled.Titles})
	case errors.Is(err, services.ErrAlreadyEnrolled):
		h.fail(c, http.StatusConflict, services.ErrAlreadyEnrolled.Error(), nil)
	case errors.Is(err, services.ErrInvalidTransition):
		h.fail(c, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &notFound):
		h.fail(c, http.StatusNotFound, notFound.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		h.fail(c, http.StatusNotFound, "Resource not found", nil)
	case errors.Is(err, services.ErrCouponInvalid):
		h.fail(c, http.StatusNotFound, services.ErrCouponInvalid.Error(), nil)
	case errors.Is(err, services.ErrServiceUnavailable):
		h.fail(c, http.StatusServiceUnavailable, services.ErrServiceUnavailable.Error(), nil)
	case errors.Is(err, services.ErrPaymentFailed):
		h.fail(c, http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, services.ErrWebhookSignature):
		h.fail(c, http.StatusUnauthorized, services.ErrWebhookSignature.Error(), nil)
	case errors.Is(err, services.ErrPaymentVerification),
		errors.Is(err, services.ErrPaymentRequired),
		errors.Is(err, services.ErrFreeCheckout),
		errors.Is(err, services.ErrAmountMismatch),
		errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrQuizRequiresSubmission),
		errors.Is(err, storage.ErrInvalidPath):
		h.fail(c, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &permissionErr):
		h.fail(c, http.StatusForbidden, "Access denied", permissionErr.Reason)
	case errors.Is(err, services.ErrNotEnrolled), errors.Is(err, services.ErrForbidden):
		h.fail(c, http.StatusForbidden, err.Error(), nil)
	case errors.As(err, &gatewayErr), errors.Is(err, payment.ErrGatewayRequest):
		h.LogError(c, err, "Payment gateway error")
		h.fail(c, http.StatusBadGateway, "Payment gateway error", nil)
	default:
		h.LogError(c, err, "Unexpected error")
		h.fail(c, http.StatusInternalServerError, "An unexpected error occurred", nil)
	}
}

// pagination reads limit/offset query params; services apply the bounds.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
