package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/storage"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

const (
	serviceName    = "enrollment-service"
	maxWebhookBody = 1 << 20
)

type HandlerManager struct {
	serviceManager    services.ServiceManager
	cartHandler       *CartHandler
	couponHandler     *CouponHandler
	checkoutHandler   *CheckoutHandler
	enrollmentHandler *EnrollmentHandler
	progressHandler   *ProgressHandler
	uploadHandler     *UploadHandler
	authMiddleware    *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	authMiddleware *CasdoorAuthMiddleware,
	store storage.Storage,
	v *validator.Validator,
	maxUploadSize int64,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		serviceManager:    serviceManager,
		cartHandler:       NewCartHandler(serviceManager.Cart(), logger),
		couponHandler:     NewCouponHandler(serviceManager.Coupon(), logger),
		checkoutHandler:   NewCheckoutHandler(serviceManager.Checkout(), serviceManager.Enrollment(), logger),
		enrollmentHandler: NewEnrollmentHandler(serviceManager.Enrollment(), v, logger),
		progressHandler:   NewProgressHandler(serviceManager.Progress(), logger),
		uploadHandler:     NewUploadHandler(store, v, maxUploadSize, logger),
		authMiddleware:    authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.health)

	// Gateway callbacks are authenticated by signature, not by bearer token
	router.POST("/api/v1/payments/webhook", MaxBodyMiddleware(maxWebhookBody), hm.checkoutHandler.Webhook)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		cart := v1.Group("/cart")
		{
			cart.GET("", hm.cartHandler.GetCart)
			cart.DELETE("", hm.cartHandler.Clear)
			cart.POST("/items", hm.cartHandler.AddItem)
			cart.DELETE("/items/:course_id", hm.cartHandler.RemoveItem)
			cart.POST("/quote", hm.cartHandler.Quote)
		}

		v1.POST("/coupons/validate", hm.couponHandler.ValidateCoupon)

		checkout := v1.Group("/checkout")
		{
			checkout.POST("/orders", hm.checkoutHandler.CreateOrder)
			checkout.POST("/confirm", hm.checkoutHandler.ConfirmPayment)
			checkout.POST("/failure", hm.checkoutHandler.ReportFailure)
			checkout.POST("/free", hm.checkoutHandler.CheckoutFree)
		}

		enrollments := v1.Group("/enrollments")
		{
			enrollments.POST("/free", hm.enrollmentHandler.EnrollFree)
			enrollments.GET("/me", hm.enrollmentHandler.ListMyEnrollments)
			enrollments.GET("/courses/:course_id", hm.enrollmentHandler.GetEnrollment)
		}

		learn := v1.Group("/learn")
		{
			learn.GET("/courses/:course_id", hm.progressHandler.GetCourseContent)
			learn.POST("/courses/:course_id/lessons/:lesson_id/complete", hm.progressHandler.MarkLessonComplete)
			learn.POST("/courses/:course_id/lessons/:lesson_id/submit", hm.progressHandler.SubmitQuiz)
			learn.GET("/attempts/:attempt_id", hm.progressHandler.GetAttempt)
		}

		// Uploads - Instructors and Admins only
		v1.POST("/uploads",
			hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor),
			MaxBodyMiddleware(hm.uploadHandler.BodyLimit()),
			hm.uploadHandler.Upload,
		)

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin))
		{
			admin.GET("/coupons", hm.couponHandler.ListCoupons)
			admin.POST("/coupons", hm.couponHandler.CreateCoupon)
			admin.POST("/coupons/import", hm.couponHandler.ImportCoupons)
			admin.POST("/coupons/:id/deactivate", hm.couponHandler.DeactivateCoupon)
		}
	}
}

func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": serviceName,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
