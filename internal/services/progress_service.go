package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/events"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
)

type progressService struct {
	repo      repositories.Repository
	db        *gorm.DB
	policy    CompletionPolicy
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

func NewProgressService(repo repositories.Repository, db *gorm.DB, policy CompletionPolicy, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) ProgressService {
	return &progressService{
		repo:      repo,
		db:        db,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

func (s *progressService) GetCourseContent(ctx context.Context, userID string, courseID uint) (*CourseContentResponse, error) {
	enrollment, err := s.enrollment(ctx, s.db, userID, courseID, false)
	if err != nil {
		return nil, err
	}

	course, err := s.repo.Course().GetByID(ctx, s.db, courseID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("course", courseID)
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	lessons, err := s.lessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	views := make([]models.Lesson, len(lessons))
	for i, l := range lessons {
		views[i] = l.StudentView()
	}

	return &CourseContentResponse{
		Course:             course,
		Enrollment:         enrollment,
		Lessons:            views,
		CompletedLessonIDs: enrollment.CompletedLessonIDs(),
		Progress:           enrollment.Progress,
		Completed:          enrollment.Completed,
	}, nil
}

func (s *progressService) MarkLessonComplete(ctx context.Context, userID string, courseID, lessonID uint) (*LessonProgressResponse, error) {
	lesson, err := s.courseLesson(ctx, courseID, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Type.IsGraded() {
		return nil, ErrQuizRequiresSubmission
	}

	lessons, err := s.lessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	var (
		enrollment    *models.Enrollment
		added         bool
		justCompleted bool
	)
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		enrollment, err = s.enrollment(ctx, tx, userID, courseID, true)
		if err != nil {
			return err
		}

		previous := enrollment.Progress
		added = enrollment.MarkLessonCompleted(lessonID)

		justCompleted, err = s.applyProgress(ctx, tx, enrollment, lessons)
		if err != nil {
			return err
		}

		if !added && !justCompleted && enrollment.Progress == previous {
			return nil
		}
		if err := s.repo.Enrollment().UpdateProgress(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if added {
		s.logger.Info("Lesson completed", "user_id", userID, "course_id", courseID, "lesson_id", lessonID, "progress", enrollment.Progress)
		events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.LessonCompleted, userID, events.LessonProgressData{
			EnrollmentID: enrollment.ID,
			UserID:       userID,
			CourseID:     courseID,
			LessonID:     lessonID,
			Progress:     enrollment.Progress,
		}))
	}
	if justCompleted {
		s.publishCourseCompleted(ctx, enrollment)
	}

	return &LessonProgressResponse{
		LessonID:           lessonID,
		CompletedLessonIDs: enrollment.CompletedLessonIDs(),
		Progress:           enrollment.Progress,
		Completed:          enrollment.Completed,
	}, nil
}

func (s *progressService) SubmitQuiz(ctx context.Context, userID string, courseID, lessonID uint, req *SubmitQuizRequest) (*QuizResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	lesson, err := s.courseLesson(ctx, courseID, lessonID)
	if err != nil {
		return nil, err
	}
	if !lesson.Type.IsGraded() {
		return nil, ValidationErrors{{Field: "lesson_id", Message: "is not a quiz or assignment", Value: lessonID, Rule: "business_logic"}}
	}
	if errs := s.validator.ValidateQuizAnswers(req.Answers, len(lesson.Questions)); len(errs) > 0 {
		return nil, errs
	}

	correct, score := ScoreQuiz(lesson.Questions, req.Answers)

	lessons, err := s.lessons(ctx, courseID)
	if err != nil {
		return nil, err
	}

	answers := make(pq.Int64Array, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = int64(a)
	}

	var (
		enrollment    *models.Enrollment
		submission    *models.QuizSubmission
		justCompleted bool
	)
	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		enrollment, err = s.enrollment(ctx, tx, userID, courseID, true)
		if err != nil {
			return err
		}

		submission = &models.QuizSubmission{
			ID:             uuid.NewString(),
			EnrollmentID:   enrollment.ID,
			UserID:         userID,
			CourseID:       courseID,
			LessonID:       lessonID,
			Answers:        answers,
			CorrectCount:   correct,
			TotalQuestions: len(lesson.Questions),
			Score:          score,
		}
		if err := s.repo.QuizSubmission().Create(ctx, tx, submission); err != nil {
			return fmt.Errorf("failed to save submission: %w", err)
		}

		enrollment.MarkLessonCompleted(lessonID)
		justCompleted, err = s.applyProgress(ctx, tx, enrollment, lessons)
		if err != nil {
			return err
		}

		if err := s.repo.Enrollment().UpdateProgress(ctx, tx, enrollment); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Quiz submitted", "user_id", userID, "lesson_id", lessonID, "attempt_id", submission.ID, "score", score)
	events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.QuizSubmitted, userID, events.LessonProgressData{
		EnrollmentID: enrollment.ID,
		UserID:       userID,
		CourseID:     courseID,
		LessonID:     lessonID,
		Progress:     enrollment.Progress,
		AttemptID:    submission.ID,
		Score:        score,
	}))
	if justCompleted {
		s.publishCourseCompleted(ctx, enrollment)
	}

	return &QuizResultResponse{
		AttemptID:      submission.ID,
		Score:          score,
		CorrectCount:   correct,
		TotalQuestions: len(lesson.Questions),
		Progress:       enrollment.Progress,
		Completed:      enrollment.Completed,
	}, nil
}

func (s *progressService) GetAttempt(ctx context.Context, userID, attemptID string) (*AttemptResultResponse, error) {
	if _, err := uuid.Parse(attemptID); err != nil {
		return nil, NewNotFoundError("attempt", attemptID)
	}

	submission, err := s.repo.QuizSubmission().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("attempt", attemptID)
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	// other users' attempts are reported as missing
	if submission.UserID != userID {
		return nil, NewNotFoundError("attempt", attemptID)
	}

	resp := &AttemptResultResponse{QuizSubmission: submission, Questions: []models.QuizQuestion{}}
	lesson, err := s.repo.Lesson().GetByID(ctx, s.db, submission.LessonID)
	switch {
	case err == nil:
		resp.LessonTitle = lesson.Title
		resp.Questions = lesson.Questions
	case repositories.IsNotFoundError(err):
		s.logger.Warn("Attempt lesson no longer exists", "attempt_id", attemptID, "lesson_id", submission.LessonID)
	default:
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	return resp, nil
}

// ScoreQuiz counts correct answers by position. Missing and negative answers
// are wrong. The score is a percentage rounded to two places.
func ScoreQuiz(questions []models.QuizQuestion, answers []int) (int, float64) {
	if len(questions) == 0 {
		return 0, 0
	}

	correct := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] >= 0 && answers[i] == q.CorrectIndex {
			correct++
		}
	}

	score, _ := decimal.NewFromInt(int64(correct * 100)).
		Div(decimal.NewFromInt(int64(len(questions)))).
		Round(2).
		Float64()
	return correct, score
}

// applyProgress recomputes progress and flips completion at most once.
func (s *progressService) applyProgress(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, lessons []*models.Lesson) (bool, error) {
	enrollment.Progress = CalculateProgress(lessons, enrollment.CompletedLessons)
	if enrollment.Completed {
		return false, nil
	}

	var scores map[uint]float64
	if s.policy.NeedsScores() {
		var err error
		scores, err = s.repo.QuizSubmission().BestScores(ctx, tx, enrollment.ID)
		if err != nil {
			return false, fmt.Errorf("failed to load quiz scores: %w", err)
		}
	}

	if !s.policy.IsComplete(lessons, enrollment.CompletedLessons, scores) {
		return false, nil
	}

	now := s.now()
	enrollment.Completed = true
	enrollment.CompletedAt = &now
	return true, nil
}

func (s *progressService) publishCourseCompleted(ctx context.Context, enrollment *models.Enrollment) {
	s.logger.Info("Course completed", "user_id", enrollment.UserID, "course_id", enrollment.CourseID)
	events.SafePublish(ctx, s.publisher, s.logger, events.NewEvent(events.CourseCompleted, enrollment.UserID, events.LessonProgressData{
		EnrollmentID: enrollment.ID,
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		Progress:     enrollment.Progress,
	}))
}

func (s *progressService) enrollment(ctx context.Context, tx *gorm.DB, userID string, courseID uint, lock bool) (*models.Enrollment, error) {
	var (
		enrollment *models.Enrollment
		err        error
	)
	if lock {
		enrollment, err = s.repo.Enrollment().GetByUserAndCourseForUpdate(ctx, tx, userID, courseID)
	} else {
		enrollment, err = s.repo.Enrollment().GetByUserAndCourse(ctx, tx, userID, courseID)
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	if enrollment.Status != models.EnrollmentApproved {
		return nil, ErrNotEnrolled
	}
	return enrollment, nil
}

func (s *progressService) courseLesson(ctx context.Context, courseID, lessonID uint) (*models.Lesson, error) {
	lesson, err := s.repo.Lesson().GetByID(ctx, s.db, lessonID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewNotFoundError("lesson", lessonID)
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	if lesson.CourseID != courseID {
		return nil, NewNotFoundError("lesson", lessonID)
	}
	return lesson, nil
}

func (s *progressService) lessons(ctx context.Context, courseID uint) ([]*models.Lesson, error) {
	lessons, err := s.repo.Lesson().ListByCourse(ctx, s.db, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	return lessons, nil
}
