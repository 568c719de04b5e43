package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/pkg"
)

func setupTestDB(t *testing.T) (repositories.Repository, *gorm.DB) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := pkg.InitDatabase(&config.Config{
		Environment:     "test",
		DatabaseURL:     dsn,
		DBMaxOpenConns:  25,
		DBMaxIdleConns:  5,
		DBConnMaxLife:   time.Minute,
		DBRunMigrations: true,
	})
	require.NoError(t, err)

	repo := NewPostgreSQLRepository(RepositoryConfig{DB: db})
	t.Cleanup(func() { _ = repo.Close() })

	return repo, db
}

func seedCourse(t *testing.T, db *gorm.DB, title string, price string) *models.Course {
	course := &models.Course{
		Title:        title,
		Price:        decimal.RequireFromString(price),
		Currency:     "INR",
		InstructorID: "instructor-1",
		IsPublished:  true,
	}
	require.NoError(t, db.Create(course).Error)
	return course
}

func newEnrollment(userID string, course *models.Course) *models.Enrollment {
	return &models.Enrollment{
		UserID:           userID,
		CourseID:         course.ID,
		StudentName:      "Student",
		CourseTitle:      course.Title,
		Price:            course.Price,
		InstructorName:   "Instructor",
		Status:           models.EnrollmentApproved,
		PaymentStatus:    models.PaymentFree,
		CompletedLessons: pq.Int64Array{},
	}
}

func TestEnrollment_DuplicateIsTranslated(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	course := seedCourse(t, db, "Go Basics", "0")

	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", course)))

	err := repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", course))
	require.Error(t, err)
	assert.True(t, repositories.IsDuplicateError(err))

	existing, err := repo.Enrollment().FindExisting(ctx, nil, "user-1", []uint{course.ID, 9999})
	require.NoError(t, err)
	assert.Len(t, existing, 1)

	_, err = repo.Enrollment().GetByUserAndCourse(ctx, nil, "user-2", course.ID)
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestEnrollment_CreateBatchIsAllOrNothing(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	a := seedCourse(t, db, "A", "100")
	b := seedCourse(t, db, "B", "200")

	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", b)))

	err := repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		return repo.Enrollment().CreateBatch(ctx, tx, []*models.Enrollment{newEnrollment("user-1", a), newEnrollment("user-1", b)})
	})
	require.Error(t, err)

	_, err = repo.Enrollment().GetByUserAndCourse(ctx, nil, "user-1", a.ID)
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestEnrollment_UpdateProgress(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	course := seedCourse(t, db, "Go Basics", "0")
	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", course)))

	err := repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		enrollment, err := repo.Enrollment().GetByUserAndCourseForUpdate(ctx, tx, "user-1", course.ID)
		if err != nil {
			return err
		}
		enrollment.MarkLessonCompleted(11)
		enrollment.Progress = 50
		return repo.Enrollment().UpdateProgress(ctx, tx, enrollment)
	})
	require.NoError(t, err)

	enrollment, err := repo.Enrollment().GetByUserAndCourse(ctx, nil, "user-1", course.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, enrollment.Progress)
	assert.Equal(t, []uint{11}, enrollment.CompletedLessonIDs())
}

func TestCourse_IncrementStudentCountIsAtomic(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	course := seedCourse(t, db, "Popular", "0")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.Course().IncrementStudentCount(ctx, nil, course.ID, 1))
		}()
	}
	wg.Wait()

	reloaded, err := repo.Course().GetByID(ctx, nil, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.StudentCount)

	err = repo.Course().IncrementStudentCount(ctx, nil, 424242, 1)
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestCourse_SyncStudentCounts(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	course := seedCourse(t, db, "Drifted", "0")
	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", course)))
	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-2", course)))
	require.NoError(t, db.Model(&models.Course{}).Where("id = ?", course.ID).Update("student_count", 7).Error)

	fixed, err := repo.Course().SyncStudentCounts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fixed)

	reloaded, err := repo.Course().GetByID(ctx, nil, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.StudentCount)
}

func TestCoupon_UpsertAndLookup(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	coupon := &models.Coupon{Code: "save10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true}
	require.NoError(t, repo.Coupon().Create(ctx, nil, coupon))

	found, err := repo.Coupon().GetByCode(ctx, nil, " Save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", found.Code)

	require.NoError(t, repo.Coupon().Upsert(ctx, nil, &models.Coupon{Code: "SAVE10", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(50), IsActive: true}))
	found, err = repo.Coupon().GetByCode(ctx, nil, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, models.DiscountFixed, found.DiscountType)

	require.NoError(t, repo.Coupon().Deactivate(ctx, nil, found.ID))
	active := true
	list, total, err := repo.Coupon().List(ctx, nil, repositories.CouponFilters{IsActive: &active})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestOrder_LockAndList(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	course := seedCourse(t, db, "Paid", "500")

	order := &models.PaymentOrder{
		GatewayOrderID: "order_abc",
		Receipt:        "rcpt_1",
		UserID:         "user-1",
		CourseIDs:      pq.Int64Array{int64(course.ID)},
		Items:          []models.CartItem{{CourseID: course.ID, Title: course.Title, Price: course.Price}},
		Subtotal:       course.Price,
		Discount:       decimal.Zero,
		Amount:         course.Price,
		Currency:       "INR",
		Status:         models.OrderCreated,
	}
	require.NoError(t, repo.Order().Create(ctx, nil, order))

	err := repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		locked, err := repo.Order().GetByGatewayOrderIDForUpdate(ctx, tx, "order_abc")
		if err != nil {
			return err
		}
		if err := locked.TransitionTo(models.OrderPaid); err != nil {
			return err
		}
		return repo.Order().Update(ctx, tx, locked)
	})
	require.NoError(t, err)

	future := time.Now().Add(time.Minute)
	paid, err := repo.Order().List(ctx, nil, repositories.OrderFilters{Statuses: []models.OrderStatus{models.OrderPaid}, OlderThan: &future})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, course.Title, paid[0].Items[0].Title)

	_, err = repo.Order().GetByGatewayOrderID(ctx, nil, "missing")
	assert.True(t, repositories.IsNotFoundError(err))
}

func TestQuizSubmission_BestScores(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	course := seedCourse(t, db, "Quizzes", "0")
	lesson := &models.Lesson{CourseID: course.ID, Title: "Quiz 1", Type: models.LessonQuiz}
	require.NoError(t, db.Create(lesson).Error)
	enrollment := newEnrollment("user-1", course)
	require.NoError(t, repo.Enrollment().Create(ctx, nil, enrollment))

	for _, score := range []float64{40, 85.5, 60} {
		require.NoError(t, repo.QuizSubmission().Create(ctx, nil, &models.QuizSubmission{
			ID:             uuid.NewString(),
			EnrollmentID:   enrollment.ID,
			UserID:         "user-1",
			CourseID:       course.ID,
			LessonID:       lesson.ID,
			Answers:        pq.Int64Array{0},
			TotalQuestions: 1,
			Score:          score,
		}))
	}

	scores, err := repo.QuizSubmission().BestScores(ctx, nil, enrollment.ID)
	require.NoError(t, err)
	assert.InDelta(t, 85.5, scores[lesson.ID], 0.001)

	lessons, err := repo.Lesson().ListByCourse(ctx, nil, course.ID)
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}

func TestList_SortByForeignColumnFallsBackToDefault(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()
	first := seedCourse(t, db, "First", "0")
	second := seedCourse(t, db, "Second", "0")
	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", first)))
	require.NoError(t, repo.Enrollment().Create(ctx, nil, newEnrollment("user-1", second)))

	for _, sortBy := range []string{"created_at", "code", "expires_at", "price; DROP TABLE enrollments"} {
		enrollments, total, err := repo.Enrollment().ListByUser(ctx, nil, "user-1", repositories.EnrollmentFilters{SortBy: sortBy, Limit: 10})
		require.NoError(t, err, sortBy)
		assert.Equal(t, int64(2), total)
		assert.Len(t, enrollments, 2)
	}

	enrollments, _, err := repo.Enrollment().ListByUser(ctx, nil, "user-1", repositories.EnrollmentFilters{SortBy: "course_title", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, "First", enrollments[0].CourseTitle)

	require.NoError(t, repo.Coupon().Create(ctx, nil, &models.Coupon{Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true}))
	for _, sortBy := range []string{"progress", "enrolled_at", "course_title", "status"} {
		coupons, total, err := repo.Coupon().List(ctx, nil, repositories.CouponFilters{SortBy: sortBy, Limit: 10})
		require.NoError(t, err, sortBy)
		assert.Equal(t, int64(1), total)
		assert.Len(t, coupons, 1)
	}
}
