package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
)

// CartHandler serves the signed-in user's cart. The session key is the user id.
type CartHandler struct {
	BaseHandler
	service services.CartService
}

func NewCartHandler(service services.CartService, logger utils.Logger) *CartHandler {
	return &CartHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// GetCart returns the cart with its subtotal
// @Router /cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	cart, err := h.service.GetCart(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, cart, "")
}

// AddItem adds a published course to the cart; adding it twice keeps one item
// @Router /cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req services.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Adding course to cart", "course_id", req.CourseID)

	cart, err := h.service.AddItem(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, cart, "Course added to cart")
}

// @Router /cart/items/{course_id} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	courseID := h.parseIDParam(c, "course_id")
	if courseID == 0 {
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	cart, err := h.service.RemoveItem(c.Request.Context(), userID, courseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, cart, "Course removed from cart")
}

// @Router /cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	if err := h.service.Clear(c.Request.Context(), userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, nil, "Cart cleared")
}

// Quote prices the cart with an optional coupon without changing it
// @Router /cart/quote [post]
func (h *CartHandler) Quote(c *gin.Context) {
	var req services.CartQuoteRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return
	}

	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}

	quote, err := h.service.Quote(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.respond(c, http.StatusOK, quote, "")
}
