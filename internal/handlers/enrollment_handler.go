package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

type EnrollmentHandler struct {
	BaseHandler
	service   services.EnrollmentService
	validator *validator.Validator
}

func NewEnrollmentHandler(service services.EnrollmentService, v *validator.Validator, logger utils.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
		validator:   v,
	}
}

// EnrollFree enrolls into a free course, or a paid one whose coupon brings the price to zero
// @Summary Free enrollment
// @Tags enrollments
// @Accept json
// @Produce json
// @Param request body services.EnrollFreeRequest true "Course and optional coupon"
// @Success 201 {object} SuccessResponse{data=models.Enrollment}
// @Failure 400 {object} ErrorResponse "Course requires payment"
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already enrolled"
// @Router /enrollments/free [post]
func (h *EnrollmentHandler) EnrollFree(c *gin.Context) {
	var req services.EnrollFreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Free enrollment", "course_id", req.CourseID)

	enrollment, err := h.service.EnrollFree(c.Request.Context(), req.CourseID, userID, req.CouponCode)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusCreated, enrollment, "Enrolled successfully")
}

// ListMyEnrollments supports status, completed, limit, offset, sort_by and sort_order
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) ListMyEnrollments(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	filters := repositories.EnrollmentFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    c.DefaultQuery("sort_by", "enrolled_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	if status := c.Query("status"); status != "" {
		s := models.EnrollmentStatus(status)
		filters.Status = &s
	}
	if completed := c.Query("completed"); completed != "" {
		done := completed == "true" || completed == "1"
		filters.Completed = &done
	}

	result, err := h.service.ListMyEnrollments(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "")
}

// @Router /enrollments/courses/{course_id} [get]
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	enrollment, err := h.service.GetEnrollment(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, enrollment, "")
}
