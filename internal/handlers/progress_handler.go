package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
)

// ProgressHandler serves the learning view of an enrolled course
type ProgressHandler struct {
	BaseHandler
	service services.ProgressService
}

func NewProgressHandler(service services.ProgressService, logger utils.Logger) *ProgressHandler {
	return &ProgressHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// @Router /learn/courses/{course_id} [get]
func (h *ProgressHandler) GetCourseContent(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	content, err := h.service.GetCourseContent(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, content, "")
}

// MarkLessonComplete is idempotent; quiz and assignment lessons go through SubmitQuiz
// @Router /learn/courses/{course_id}/lessons/{lesson_id}/complete [post]
func (h *ProgressHandler) MarkLessonComplete(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}
	lessonID := h.parseIDParam(c, "lesson_id")
	if lessonID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Marking lesson complete", "course_id", courseID, "lesson_id", lessonID)

	result, err := h.service.MarkLessonComplete(c.Request.Context(), userID, courseID, lessonID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, result, "")
}

// @Router /learn/courses/{course_id}/lessons/{lesson_id}/submit [post]
func (h *ProgressHandler) SubmitQuiz(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}
	lessonID := h.parseIDParam(c, "lesson_id")
	if lessonID == 0 {
		return
	}

	var req services.SubmitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting quiz", "course_id", courseID, "lesson_id", lessonID, "answers", len(req.Answers))

	result, err := h.service.SubmitQuiz(c.Request.Context(), userID, courseID, lessonID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusCreated, result, "Quiz submitted")
}

// @Router /learn/attempts/{attempt_id} [get]
func (h *ProgressHandler) GetAttempt(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	attempt, err := h.service.GetAttempt(c.Request.Context(), userID, c.Param("attempt_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, attempt, "")
}
