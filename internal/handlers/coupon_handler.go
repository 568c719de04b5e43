package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
)

const maxImportSize = 5 << 20

type CouponHandler struct {
	BaseHandler
	service services.CouponService
}

func NewCouponHandler(service services.CouponService, logger utils.Logger) *CouponHandler {
	return &CouponHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// ValidateCoupon returns the discount of an active coupon, priced when a subtotal is given
// @Summary Validate coupon
// @Tags coupons
// @Accept json
// @Produce json
// @Param request body services.ValidateCouponRequest true "Coupon code"
// @Success 200 {object} SuccessResponse{data=services.CouponValidationResponse}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse "Invalid or expired coupon"
// @Router /coupons/validate [post]
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req services.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.service.ValidateRequest(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "Coupon is valid")
}

// ===== ADMIN ENDPOINTS =====

// @Router /admin/coupons [post]
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req services.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	adminID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	coupon, err := h.service.Create(c.Request.Context(), &req, adminID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusCreated, coupon, "Coupon created")
}

// ListCoupons supports is_active, q, limit, offset, sort_by and sort_order
// @Router /admin/coupons [get]
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	limit, offset := pagination(c)
	filters := repositories.CouponFilters{
		Query:     strings.TrimSpace(c.Query("q")),
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if active := c.Query("is_active"); active != "" {
		isActive := active == "true" || active == "1"
		filters.IsActive = &isActive
	}

	result, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "")
}

// @Router /admin/coupons/{id}/deactivate [post]
func (h *CouponHandler) DeactivateCoupon(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deactivating coupon", "coupon_id", id)

	if err := h.service.Deactivate(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, nil, "Coupon deactivated")
}

// ImportCoupons upserts coupons from an .xlsx upload (form field "file")
// @Router /admin/coupons/import [post]
func (h *CouponHandler) ImportCoupons(c *gin.Context) {
	adminID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.fail(c, http.StatusBadRequest, "File is required", err.Error())
		return
	}
	if fileHeader.Size > maxImportSize {
		h.fail(c, http.StatusRequestEntityTooLarge, "File too large", nil)
		return
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
		h.fail(c, http.StatusBadRequest, "Only .xlsx files are supported", fileHeader.Filename)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to open file", err.Error())
		return
	}
	defer file.Close()

	h.LogRequest(c, "Importing coupons", "file", fileHeader.Filename, "size", fileHeader.Size)

	result, err := h.service.Import(c.Request.Context(), file, adminID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "Import finished")
}
