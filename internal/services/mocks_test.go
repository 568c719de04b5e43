package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/events"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

// MockRepository is an in-memory repositories.Repository. Reads return copies
// so callers only change stored state through repository writes.
type MockRepository struct {
	mu sync.Mutex

	courses     map[uint]*models.Course
	lessons     map[uint]*models.Lesson
	coupons     map[uint]*models.Coupon
	orders      map[string]*models.PaymentOrder
	enrollments map[uint]*models.Enrollment
	submissions map[string]*models.QuizSubmission
	users       map[string]*models.User

	nextID        uint
	incrementErr  error
	createBatches int
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		courses:     make(map[uint]*models.Course),
		lessons:     make(map[uint]*models.Lesson),
		coupons:     make(map[uint]*models.Coupon),
		orders:      make(map[string]*models.PaymentOrder),
		enrollments: make(map[uint]*models.Enrollment),
		submissions: make(map[string]*models.QuizSubmission),
		users:       make(map[string]*models.User),
		nextID:      1000,
	}
}

func (m *MockRepository) Course() repositories.CourseRepository     { return &mockCourseRepo{m} }
func (m *MockRepository) Lesson() repositories.LessonRepository     { return &mockLessonRepo{m} }
func (m *MockRepository) Coupon() repositories.CouponRepository     { return &mockCouponRepo{m} }
func (m *MockRepository) Order() repositories.OrderRepository       { return &mockOrderRepo{m} }
func (m *MockRepository) Enrollment() repositories.EnrollmentRepository {
	return &mockEnrollmentRepo{m}
}
func (m *MockRepository) QuizSubmission() repositories.QuizSubmissionRepository {
	return &mockQuizRepo{m}
}
func (m *MockRepository) User() repositories.UserRepository { return &mockUserRepo{m} }

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
func (m *MockRepository) Ping(ctx context.Context) error { return nil }
func (m *MockRepository) Close() error                   { return nil }

func (m *MockRepository) id() uint {
	m.nextID++
	return m.nextID
}

// ===== fixtures =====

func (m *MockRepository) AddUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, FullName: name, Email: id + "@example.com"}
}

func (m *MockRepository) AddCourse(id uint, title, price, instructorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[id] = &models.Course{
		ID:           id,
		Title:        title,
		Price:        decimal.RequireFromString(price),
		Currency:     "INR",
		InstructorID: instructorID,
		IsPublished:  true,
	}
}

func (m *MockRepository) AddLesson(lesson models.Lesson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := lesson
	m.lessons[l.ID] = &l
}

func (m *MockRepository) AddCoupon(code string, discountType models.DiscountType, value string, active bool, expiresAt *time.Time) *models.Coupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &models.Coupon{
		ID:            m.id(),
		Code:          models.NormalizeCouponCode(code),
		DiscountType:  discountType,
		DiscountValue: decimal.RequireFromString(value),
		IsActive:      active,
		ExpiresAt:     expiresAt,
	}
	m.coupons[c.ID] = c
	return c
}

func (m *MockRepository) StudentCount(courseID uint) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[courseID].StudentCount
}

func (m *MockRepository) EnrollmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *MockRepository) StoredOrder(gatewayOrderID string) *models.PaymentOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[gatewayOrderID]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (m *MockRepository) StoredEnrollment(userID string, courseID uint) *models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return copyEnrollment(e)
		}
	}
	return nil
}

func (m *MockRepository) SetOrderUpdatedAt(gatewayOrderID string, createdAt, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[gatewayOrderID].CreatedAt = createdAt
	m.orders[gatewayOrderID].UpdatedAt = updatedAt
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, gorm.ErrRecordNotFound)
}

func copyEnrollment(e *models.Enrollment) *models.Enrollment {
	cp := *e
	cp.CompletedLessons = append(pq.Int64Array{}, e.CompletedLessons...)
	return &cp
}

// ===== courses =====

type mockCourseRepo struct{ m *MockRepository }

func (r *mockCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.courses[id]
	if !ok {
		return nil, notFound("course")
	}
	cp := *c
	return &cp, nil
}

func (r *mockCourseRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Course, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Course
	for _, id := range ids {
		if c, ok := r.m.courses[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *mockCourseRepo) IncrementStudentCount(ctx context.Context, tx *gorm.DB, id uint, delta int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.incrementErr != nil {
		return r.m.incrementErr
	}
	c, ok := r.m.courses[id]
	if !ok {
		return notFound("course")
	}
	c.StudentCount += delta
	return nil
}

func (r *mockCourseRepo) SyncStudentCounts(ctx context.Context, tx *gorm.DB) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	counts := make(map[uint]int)
	for _, e := range r.m.enrollments {
		if e.Status == models.EnrollmentApproved {
			counts[e.CourseID]++
		}
	}
	var fixed int64
	for id, c := range r.m.courses {
		if c.StudentCount != counts[id] {
			c.StudentCount = counts[id]
			fixed++
		}
	}
	return fixed, nil
}

// ===== lessons =====

type mockLessonRepo struct{ m *MockRepository }

func (r *mockLessonRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Lesson, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	l, ok := r.m.lessons[id]
	if !ok {
		return nil, notFound("lesson")
	}
	cp := *l
	return &cp, nil
}

func (r *mockLessonRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uint) ([]*models.Lesson, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Lesson
	for _, l := range r.m.lessons {
		if l.CourseID == courseID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderNumber != out[j].OrderNumber {
			return out[i].OrderNumber < out[j].OrderNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ===== coupons =====

type mockCouponRepo struct{ m *MockRepository }

func (r *mockCouponRepo) Create(ctx context.Context, tx *gorm.DB, coupon *models.Coupon) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	for _, c := range r.m.coupons {
		if c.Code == coupon.Code {
			return gorm.ErrDuplicatedKey
		}
	}
	coupon.ID = r.m.id()
	cp := *coupon
	r.m.coupons[cp.ID] = &cp
	return nil
}

func (r *mockCouponRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Coupon, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.coupons[id]
	if !ok {
		return nil, notFound("coupon")
	}
	cp := *c
	return &cp, nil
}

func (r *mockCouponRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*models.Coupon, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("coupon")
}

func (r *mockCouponRepo) Upsert(ctx context.Context, tx *gorm.DB, coupon *models.Coupon) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	for id, c := range r.m.coupons {
		if c.Code == coupon.Code {
			coupon.ID = id
			cp := *coupon
			r.m.coupons[id] = &cp
			return nil
		}
	}
	coupon.ID = r.m.id()
	cp := *coupon
	r.m.coupons[cp.ID] = &cp
	return nil
}

func (r *mockCouponRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.CouponFilters) ([]*models.Coupon, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Coupon
	for _, c := range r.m.coupons {
		if filters.IsActive != nil && c.IsActive != *filters.IsActive {
			continue
		}
		if filters.Query != "" && !strings.Contains(c.Code, strings.ToUpper(filters.Query)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := int64(len(out))
	if filters.Offset < len(out) {
		out = out[filters.Offset:]
	} else {
		out = nil
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *mockCouponRepo) Deactivate(ctx context.Context, tx *gorm.DB, id uint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.coupons[id]
	if !ok {
		return notFound("coupon")
	}
	c.IsActive = false
	return nil
}

// ===== enrollments =====

type mockEnrollmentRepo struct{ m *MockRepository }

func (r *mockEnrollmentRepo) exists(userID string, courseID uint) bool {
	for _, e := range r.m.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return true
		}
	}
	return false
}

func (r *mockEnrollmentRepo) insert(e *models.Enrollment) {
	e.ID = r.m.id()
	e.EnrolledAt = time.Now()
	r.m.enrollments[e.ID] = copyEnrollment(e)
}

func (r *mockEnrollmentRepo) Create(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.exists(enrollment.UserID, enrollment.CourseID) {
		return fmt.Errorf("failed to create enrollment: %w", gorm.ErrDuplicatedKey)
	}
	r.insert(enrollment)
	return nil
}

func (r *mockEnrollmentRepo) CreateBatch(ctx context.Context, tx *gorm.DB, enrollments []*models.Enrollment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.createBatches++
	for _, e := range enrollments {
		if r.exists(e.UserID, e.CourseID) {
			return fmt.Errorf("failed to create enrollments: %w", gorm.ErrDuplicatedKey)
		}
	}
	for _, e := range enrollments {
		r.insert(e)
	}
	return nil
}

func (r *mockEnrollmentRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return copyEnrollment(e), nil
		}
	}
	return nil, notFound("enrollment")
}

func (r *mockEnrollmentRepo) GetByUserAndCourseForUpdate(ctx context.Context, tx *gorm.DB, userID string, courseID uint) (*models.Enrollment, error) {
	return r.GetByUserAndCourse(ctx, tx, userID, courseID)
}

func (r *mockEnrollmentRepo) FindExisting(ctx context.Context, tx *gorm.DB, userID string, courseIDs []uint) ([]*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	wanted := make(map[uint]bool, len(courseIDs))
	for _, id := range courseIDs {
		wanted[id] = true
	}
	var out []*models.Enrollment
	for _, e := range r.m.enrollments {
		if e.UserID == userID && wanted[e.CourseID] {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (r *mockEnrollmentRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.EnrollmentFilters) ([]*models.Enrollment, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Enrollment
	for _, e := range r.m.enrollments {
		if e.UserID != userID {
			continue
		}
		if filters.Completed != nil && e.Completed != *filters.Completed {
			continue
		}
		out = append(out, copyEnrollment(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *mockEnrollmentRepo) ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*models.Enrollment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Enrollment
	for _, e := range r.m.enrollments {
		if e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockEnrollmentRepo) UpdateProgress(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.enrollments[enrollment.ID]
	if !ok {
		return notFound("enrollment")
	}
	e.Progress = enrollment.Progress
	e.CompletedLessons = append(pq.Int64Array{}, enrollment.CompletedLessons...)
	e.Completed = enrollment.Completed
	e.CompletedAt = enrollment.CompletedAt
	return nil
}

// ===== orders =====

type mockOrderRepo struct{ m *MockRepository }

func (r *mockOrderRepo) Create(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.orders[order.GatewayOrderID]; ok {
		return gorm.ErrDuplicatedKey
	}
	order.ID = r.m.id()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	r.m.orders[order.GatewayOrderID] = &cp
	return nil
}

func (r *mockOrderRepo) GetByGatewayOrderID(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	o, ok := r.m.orders[gatewayOrderID]
	if !ok {
		return nil, notFound("order")
	}
	cp := *o
	return &cp, nil
}

func (r *mockOrderRepo) GetByGatewayOrderIDForUpdate(ctx context.Context, tx *gorm.DB, gatewayOrderID string) (*models.PaymentOrder, error) {
	return r.GetByGatewayOrderID(ctx, tx, gatewayOrderID)
}

func (r *mockOrderRepo) Update(ctx context.Context, tx *gorm.DB, order *models.PaymentOrder) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.orders[order.GatewayOrderID]; !ok {
		return notFound("order")
	}
	cp := *order
	cp.UpdatedAt = time.Now()
	r.m.orders[order.GatewayOrderID] = &cp
	return nil
}

func (r *mockOrderRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.OrderFilters) ([]*models.PaymentOrder, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	statuses := make(map[models.OrderStatus]bool)
	for _, s := range filters.Statuses {
		statuses[s] = true
	}
	var out []*models.PaymentOrder
	for _, o := range r.m.orders {
		if len(statuses) > 0 && !statuses[o.Status] {
			continue
		}
		if filters.OlderThan != nil && !o.UpdatedAt.Before(*filters.OlderThan) {
			continue
		}
		if filters.NewerThan != nil && !o.CreatedAt.After(*filters.NewerThan) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ===== quiz submissions =====

type mockQuizRepo struct{ m *MockRepository }

func (r *mockQuizRepo) Create(ctx context.Context, tx *gorm.DB, submission *models.QuizSubmission) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	submission.SubmittedAt = time.Now()
	cp := *submission
	r.m.submissions[submission.ID] = &cp
	return nil
}

func (r *mockQuizRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizSubmission, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.submissions[id]
	if !ok {
		return nil, notFound("submission")
	}
	cp := *s
	return &cp, nil
}

func (r *mockQuizRepo) BestScores(ctx context.Context, tx *gorm.DB, enrollmentID uint) (map[uint]float64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	best := make(map[uint]float64)
	for _, s := range r.m.submissions {
		if s.EnrollmentID != enrollmentID {
			continue
		}
		if cur, ok := best[s.LessonID]; !ok || s.Score > cur {
			best[s.LessonID] = s.Score
		}
	}
	return best, nil
}

// ===== users =====

type mockUserRepo struct{ m *MockRepository }

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, notFound("user")
	}
	cp := *u
	return &cp, nil
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if u, ok := r.m.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ===== service fixture =====

type testServices struct {
	repo      *MockRepository
	gateway   *payment.MockGateway
	publisher *events.MockEventPublisher
	redis     *miniredis.Miniredis

	cart       CartService
	coupon     CouponService
	enrollment EnrollmentService
	checkout   CheckoutService
	progress   ProgressService
	reconcile  ReconciliationService
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServices(t *testing.T, policy CompletionPolicy) *testServices {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := testLogger()
	v := validator.New()
	repo := NewMockRepository()
	gateway := payment.NewMockGateway()
	publisher := events.NewMockEventPublisher(logger)

	// coupon lookups go to the repository so tests see writes immediately
	coupons := NewCouponService(repo, nil, cache.NewCacheManager(nil), logger, v)
	carts := NewCartService(repo, nil, cache.NewRedisCartStore(client, time.Hour), coupons, logger, v)
	enrollments := NewEnrollmentService(repo, nil, coupons, carts, publisher, logger, v)
	checkout := NewCheckoutService(repo, nil, gateway, coupons, enrollments, carts, publisher, "INR", logger, v)
	progress := NewProgressService(repo, nil, policy, publisher, logger, v)
	reconcile := NewReconciliationService(repo, nil, gateway, checkout, config.ReconcileConfig{}, logger)

	return &testServices{
		repo:       repo,
		gateway:    gateway,
		publisher:  publisher,
		redis:      mr,
		cart:       carts,
		coupon:     coupons,
		enrollment: enrollments,
		checkout:   checkout,
		progress:   progress,
		reconcile:  reconcile,
	}
}

// seedCatalog adds a student, an instructor and three courses:
// 1 free, 2 priced 1000, 3 priced 500.
func (ts *testServices) seedCatalog() {
	ts.repo.AddUser("student-1", "Asha Student")
	ts.repo.AddUser("student-2", "Ravi Student")
	ts.repo.AddUser("instructor-1", "Meera Instructor")
	ts.repo.AddCourse(1, "Intro to Go", "0", "instructor-1")
	ts.repo.AddCourse(2, "Distributed Systems", "1000", "instructor-1")
	ts.repo.AddCourse(3, "Databases", "500", "instructor-1")
}

func strPtr(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func couponFilters(active *bool) repositories.CouponFilters {
	return repositories.CouponFilters{IsActive: active}
}
