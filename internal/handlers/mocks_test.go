package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/storage"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

// Fakes embed the service interface; calling a method a test did not stub panics.

type fakeCartService struct {
	services.CartService
	addItem func(ctx context.Context, sessionID string, req *services.AddCartItemRequest) (*services.CartResponse, error)
}

func (f *fakeCartService) AddItem(ctx context.Context, sessionID string, req *services.AddCartItemRequest) (*services.CartResponse, error) {
	return f.addItem(ctx, sessionID, req)
}

type fakeCouponService struct {
	services.CouponService
	list        func(ctx context.Context, filters repositories.CouponFilters) (*services.CouponListResponse, error)
	importFile  func(ctx context.Context, r io.Reader, adminID string) (*services.CouponImportResult, error)
	validateReq func(ctx context.Context, req *services.ValidateCouponRequest) (*services.CouponValidationResponse, error)
}

func (f *fakeCouponService) List(ctx context.Context, filters repositories.CouponFilters) (*services.CouponListResponse, error) {
	return f.list(ctx, filters)
}

func (f *fakeCouponService) Import(ctx context.Context, r io.Reader, adminID string) (*services.CouponImportResult, error) {
	return f.importFile(ctx, r, adminID)
}

func (f *fakeCouponService) ValidateRequest(ctx context.Context, req *services.ValidateCouponRequest) (*services.CouponValidationResponse, error) {
	return f.validateReq(ctx, req)
}

type fakeEnrollmentService struct {
	services.EnrollmentService
	enrollFree func(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error)
	list       func(ctx context.Context, userID string, filters repositories.EnrollmentFilters) (*services.EnrollmentListResponse, error)
}

func (f *fakeEnrollmentService) EnrollFree(ctx context.Context, courseID uint, userID string, couponCode *string) (*models.Enrollment, error) {
	return f.enrollFree(ctx, courseID, userID, couponCode)
}

func (f *fakeEnrollmentService) ListMyEnrollments(ctx context.Context, userID string, filters repositories.EnrollmentFilters) (*services.EnrollmentListResponse, error) {
	return f.list(ctx, userID, filters)
}

type fakeCheckoutService struct {
	services.CheckoutService
	handleWebhook func(ctx context.Context, body []byte, signature string) error
	confirm       func(ctx context.Context, userID string, req *services.ConfirmPaymentRequest) (*services.OrderResultResponse, error)
}

func (f *fakeCheckoutService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	return f.handleWebhook(ctx, body, signature)
}

func (f *fakeCheckoutService) ConfirmPayment(ctx context.Context, userID string, req *services.ConfirmPaymentRequest) (*services.OrderResultResponse, error) {
	return f.confirm(ctx, userID, req)
}

type fakeProgressService struct {
	services.ProgressService
	submitQuiz func(ctx context.Context, userID string, courseID, lessonID uint, req *services.SubmitQuizRequest) (*services.QuizResultResponse, error)
}

func (f *fakeProgressService) SubmitQuiz(ctx context.Context, userID string, courseID, lessonID uint, req *services.SubmitQuizRequest) (*services.QuizResultResponse, error) {
	return f.submitQuiz(ctx, userID, courseID, lessonID, req)
}

type fakeServiceManager struct {
	services.ServiceManager
	cart        *fakeCartService
	coupon      *fakeCouponService
	enrollment  *fakeEnrollmentService
	checkout    *fakeCheckoutService
	progress    *fakeProgressService
	healthError error
}

func (m *fakeServiceManager) Cart() services.CartService             { return m.cart }
func (m *fakeServiceManager) Coupon() services.CouponService         { return m.coupon }
func (m *fakeServiceManager) Enrollment() services.EnrollmentService { return m.enrollment }
func (m *fakeServiceManager) Checkout() services.CheckoutService     { return m.checkout }
func (m *fakeServiceManager) Progress() services.ProgressService     { return m.progress }

func (m *fakeServiceManager) HealthCheck(ctx context.Context) error {
	return m.healthError
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := r.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

var testTokens = map[string]casdoorsdk.User{
	"student-token":    {Id: "student-1", Type: "student", DisplayName: "Asha Student"},
	"instructor-token": {Id: "instructor-1", Type: "instructor", DisplayName: "Meera Instructor"},
	"admin-token":      {Id: "admin-1", Type: "normal-user", IsAdmin: true},
}

func fakeTokenParser(token string) (*casdoorsdk.Claims, error) {
	user, ok := testTokens[token]
	if !ok {
		return nil, errors.New("token is malformed")
	}
	return &casdoorsdk.Claims{User: user}, nil
}

type testServer struct {
	router  *gin.Engine
	manager *fakeServiceManager
	storage *storage.MemoryStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	manager := &fakeServiceManager{
		cart:       &fakeCartService{},
		coupon:     &fakeCouponService{},
		enrollment: &fakeEnrollmentService{},
		checkout:   &fakeCheckoutService{},
		progress:   &fakeProgressService{},
	}
	userRepo := &fakeUserRepo{users: map[string]*models.User{
		"student-1": {ID: "student-1", FullName: "Asha Student", Email: "asha@example.com"},
	}}
	store := storage.NewMemoryStorage("https://cdn.test")

	router := gin.New()
	SetupMiddleware(router, logger)
	auth := NewAuthMiddlewareWithParser(fakeTokenParser, userRepo, logger)
	NewHandlerManager(manager, auth, store, validator.New(), 1<<20, logger).SetupRoutes(router)

	return &testServer{router: router, manager: manager, storage: store}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		payload, _ := json.Marshal(b)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(path, token, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, _ := writer.CreateFormFile("file", filename)
	_, _ = part.Write(content)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (s *testServer) doWithHeader(method, path string, body []byte, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, value)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}
