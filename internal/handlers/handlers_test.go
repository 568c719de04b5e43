package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)

	s.manager.healthError = errors.New("database ping failed")
	w = s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthMiddleware_RejectsMissingOrInvalidToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, decodeEnvelope(t, w).Success)

	w = s.do(http.MethodGet, "/api/v1/cart", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartHandler_AddItemUsesUserAsSession(t *testing.T) {
	s := newTestServer(t)
	var gotSession string
	s.manager.cart.addItem = func(ctx context.Context, sessionID string, req *services.AddCartItemRequest) (*services.CartResponse, error) {
		gotSession = sessionID
		cart := models.NewCart(sessionID)
		cart.Add(models.CartItem{CourseID: req.CourseID, Title: "Distributed Systems", Price: decimal.NewFromInt(1000)})
		return &services.CartResponse{Cart: cart, Subtotal: cart.Subtotal()}, nil
	}

	w := s.do(http.MethodPost, "/api/v1/cart/items", "student-token", gin.H{"course_id": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "student-1", gotSession)

	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, "Course added to cart", env.Message)
	assert.Contains(t, string(env.Data), "Distributed Systems")
}

func TestCartHandler_RejectsBadPayload(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/v1/cart/items", "student-token", []byte(`{"course_id":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/api/v1/cart/items/abc", "student-token", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"already enrolled", services.ErrAlreadyEnrolled, http.StatusConflict},
		{"batch conflict", &services.AlreadyEnrolledError{CourseIDs: []uint{3}, Titles: []string{"Databases"}}, http.StatusConflict},
		{"not found", services.NewNotFoundError("course", 9), http.StatusNotFound},
		{"coupon", services.ErrCouponInvalid, http.StatusNotFound},
		{"unconfigured", services.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"payment failed", services.ErrPaymentFailed, http.StatusPaymentRequired},
		{"verification", services.ErrPaymentVerification, http.StatusBadRequest},
		{"payment required", services.ErrPaymentRequired, http.StatusBadRequest},
		{"wrapped", fmt.Errorf("failed to enroll: %w", services.ErrEmptyCart), http.StatusBadRequest},
		{"not enrolled", services.ErrNotEnrolled, http.StatusForbidden},
		{"permission", services.NewPermissionError("u", "o", "order", "confirm", "order belongs to another user"), http.StatusForbidden},
		{"transition", fmt.Errorf("%w: enrolled -> failed", models.ErrInvalidOrderTransition), http.StatusConflict},
		{"validation", services.ValidationErrors{{Field: "course_id", Message: "course_id is required"}}, http.StatusBadRequest},
		{"gateway", &payment.GatewayError{StatusCode: 500, Code: "SERVER_ERROR"}, http.StatusBadGateway},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.manager.enrollment.enrollFree = func(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error) {
				return nil, tt.err
			}

			w := s.do(http.MethodPost, "/api/v1/enrollments/free", "student-token", gin.H{"course_id": 1})
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, decodeEnvelope(t, w).Success)
		})
	}
}

func TestHandleServiceError_Details(t *testing.T) {
	s := newTestServer(t)
	s.manager.enrollment.enrollFree = func(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error) {
		return nil, &services.AlreadyEnrolledError{CourseIDs: []uint{3}, Titles: []string{"Databases"}}
	}

	w := s.do(http.MethodPost, "/api/v1/enrollments/free", "student-token", gin.H{"course_id": 3})
	env := decodeEnvelope(t, w)
	assert.Equal(t, "already enrolled in: Databases", env.Message)
	assert.Contains(t, string(env.Details), "Databases")
}

func TestEnrollmentHandler_EnrollFreePassesCoupon(t *testing.T) {
	s := newTestServer(t)
	var gotCoupon *string
	s.manager.enrollment.enrollFree = func(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error) {
		gotCoupon = couponCode
		return &models.Enrollment{ID: 1, UserID: userID, CourseID: courseID, Status: models.EnrollmentApproved}, nil
	}

	w := s.do(http.MethodPost, "/api/v1/enrollments/free", "student-token", gin.H{"course_id": 2, "coupon_code": "FREE100"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, gotCoupon)
	assert.Equal(t, "FREE100", *gotCoupon)
}

func TestEnrollmentHandler_EnrollFreeValidatesRequest(t *testing.T) {
	s := newTestServer(t)
	s.manager.enrollment.enrollFree = func(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error) {
		t.Fatal("service must not be called for an invalid request")
		return nil, nil
	}

	for _, body := range []gin.H{
		{"coupon_code": "FREE100"},
		{"course_id": 2, "coupon_code": "no spaces!"},
	} {
		w := s.do(http.MethodPost, "/api/v1/enrollments/free", "student-token", body)
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Equal(t, "Validation failed", decodeEnvelope(t, w).Message)
	}
}

func TestEnrollmentHandler_ListParsesFilters(t *testing.T) {
	s := newTestServer(t)
	var got repositories.EnrollmentFilters
	s.manager.enrollment.list = func(ctx context.Context, userID string, filters repositories.EnrollmentFilters) (*services.EnrollmentListResponse, error) {
		got = filters
		return &services.EnrollmentListResponse{Enrollments: []*models.Enrollment{}, Page: 1, Size: filters.Limit}, nil
	}

	w := s.do(http.MethodGet, "/api/v1/enrollments/me?completed=true&limit=5&offset=10&sort_by=progress", "student-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.Completed)
	assert.True(t, *got.Completed)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 10, got.Offset)
	assert.Equal(t, "progress", got.SortBy)
}

func TestCheckoutHandler_WebhookNeedsNoBearerToken(t *testing.T) {
	s := newTestServer(t)
	var gotBody []byte
	var gotSignature string
	s.manager.checkout.handleWebhook = func(ctx context.Context, body []byte, signature string) error {
		gotBody = body
		gotSignature = signature
		if signature != "good" {
			return services.ErrWebhookSignature
		}
		return nil
	}

	body := []byte(`{"event":"payment.captured"}`)
	req := s.do(http.MethodPost, "/api/v1/payments/webhook", "", body)
	assert.Equal(t, http.StatusUnauthorized, req.Code)

	w := s.doWithHeader(http.MethodPost, "/api/v1/payments/webhook", body, webhookSignatureHeader, "good")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, gotBody)
	assert.Equal(t, "good", gotSignature)
}

func TestCheckoutHandler_ConfirmPayment(t *testing.T) {
	s := newTestServer(t)
	s.manager.checkout.confirm = func(ctx context.Context, userID string, req *services.ConfirmPaymentRequest) (*services.OrderResultResponse, error) {
		if req.RazorpaySignature != "sig" {
			return nil, services.ErrPaymentVerification
		}
		return &services.OrderResultResponse{OrderID: req.RazorpayOrderID, Status: models.OrderEnrolled}, nil
	}

	payload := gin.H{"razorpay_order_id": "order_1", "razorpay_payment_id": "pay_1", "razorpay_signature": "sig"}
	w := s.do(http.MethodPost, "/api/v1/checkout/confirm", "student-token", payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result services.OrderResultResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, models.OrderEnrolled, result.Status)

	payload["razorpay_signature"] = "forged"
	w = s.do(http.MethodPost, "/api/v1/checkout/confirm", "student-token", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCouponHandler_ValidateReturns404ForUnknownCode(t *testing.T) {
	s := newTestServer(t)
	s.manager.coupon.validateReq = func(ctx context.Context, req *services.ValidateCouponRequest) (*services.CouponValidationResponse, error) {
		return nil, services.ErrCouponInvalid
	}

	w := s.do(http.MethodPost, "/api/v1/coupons/validate", "student-token", gin.H{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, services.ErrCouponInvalid.Error(), decodeEnvelope(t, w).Message)
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	s := newTestServer(t)
	var got repositories.CouponFilters
	s.manager.coupon.list = func(ctx context.Context, filters repositories.CouponFilters) (*services.CouponListResponse, error) {
		got = filters
		return &services.CouponListResponse{Coupons: []*models.Coupon{}}, nil
	}

	w := s.do(http.MethodGet, "/api/v1/admin/coupons", "student-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/api/v1/admin/coupons", "instructor-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/admin/coupons?is_active=false&q=save", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.IsActive)
	assert.False(t, *got.IsActive)
	assert.Equal(t, "save", got.Query)
}

func TestCouponHandler_Import(t *testing.T) {
	s := newTestServer(t)
	var gotAdmin string
	var gotContent string
	s.manager.coupon.importFile = func(ctx context.Context, r io.Reader, adminID string) (*services.CouponImportResult, error) {
		gotAdmin = adminID
		data, _ := io.ReadAll(r)
		gotContent = string(data)
		return &services.CouponImportResult{Imported: 2, Errors: []services.CouponImportRowError{}}, nil
	}

	w := s.upload("/api/v1/admin/coupons/import", "admin-token", "coupons.csv", []byte("a,b"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload("/api/v1/admin/coupons/import", "admin-token", "coupons.xlsx", []byte("workbook"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "admin-1", gotAdmin)
	assert.Equal(t, "workbook", gotContent)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"imported":2`)
}

func TestUploadHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.upload("/api/v1/uploads", "student-token", "intro.mp4", []byte("video"), map[string]string{"path": "courses/2"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.upload("/api/v1/uploads", "instructor-token", "Intro.MP4", []byte("video"), map[string]string{"path": "courses/2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var object struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &object))
	assert.True(t, strings.HasPrefix(object.Key, "courses/2/"))
	assert.True(t, strings.HasSuffix(object.Key, ".mp4"))
	assert.Equal(t, "https://cdn.test/"+object.Key, object.URL)
	assert.Equal(t, []byte("video"), s.storage.Objects[object.Key])

	w = s.upload("/api/v1/uploads", "instructor-token", "big.bin", make([]byte, 2<<20), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "Request body too large", decodeEnvelope(t, w).Message)

	// within the body cap but over the file limit
	w = s.upload("/api/v1/uploads", "instructor-token", "big.bin", make([]byte, 1<<20+100), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File too large", decodeEnvelope(t, w).Message)
}

func TestUploadHandler_RejectsEscapingPath(t *testing.T) {
	s := newTestServer(t)

	for _, p := range []string{"../etc", "/abs/dir", "courses/../../x"} {
		w := s.upload("/api/v1/uploads", "instructor-token", "a.png", []byte("png"), map[string]string{"path": p})
		require.Equal(t, http.StatusBadRequest, w.Code, p)
		assert.Contains(t, string(decodeEnvelope(t, w).Details), "storage_path")
	}
	assert.Empty(t, s.storage.Objects)
}

func TestUploadHandler_StorageNotConfigured(t *testing.T) {
	s := newTestServer(t)
	h := NewUploadHandler(nil, validator.New(), 0, nil)
	s.router.POST("/test-upload", func(c *gin.Context) {
		c.Set("user_id", "instructor-1")
		h.Upload(c)
	})

	w := s.upload("/test-upload", "instructor-token", "a.png", []byte("png"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProgressHandler_SubmitQuiz(t *testing.T) {
	s := newTestServer(t)
	s.manager.progress.submitQuiz = func(ctx context.Context, userID string, courseID, lessonID uint, req *services.SubmitQuizRequest) (*services.QuizResultResponse, error) {
		if len(req.Answers) > 4 {
			return nil, validator.ValidationErrors{{Field: "answers", Message: "too many answers", Rule: "max"}}
		}
		return &services.QuizResultResponse{AttemptID: "a1", Score: 75, CorrectCount: 3, TotalQuestions: 4, Progress: 100}, nil
	}

	w := s.do(http.MethodPost, "/api/v1/learn/courses/1/lessons/12/submit", "student-token", gin.H{"answers": []int{1, 0, 0, 0}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"score":75`)

	w = s.do(http.MethodPost, "/api/v1/learn/courses/1/lessons/12/submit", "student-token", gin.H{"answers": []int{1, 0, 0, 0, 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "Validation failed", env.Message)
	assert.Contains(t, string(env.Details), "too many answers")

	w = s.do(http.MethodPost, "/api/v1/learn/courses/x/lessons/12/submit", "student-token", gin.H{"answers": []int{1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
