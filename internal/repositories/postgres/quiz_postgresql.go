package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories"
)

type QuizSubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewQuizSubmissionPostgreSQL(db *gorm.DB) repositories.QuizSubmissionRepository {
	return &QuizSubmissionPostgreSQL{db: db}
}

func (q *QuizSubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuizSubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.QuizSubmission) error {
	if err := q.getDB(tx).WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create quiz submission: %w", err)
	}
	return nil
}

func (q *QuizSubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.QuizSubmission, error) {
	var submission models.QuizSubmission
	if err := q.getDB(tx).WithContext(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return nil, fmt.Errorf("failed to get quiz submission: %w", err)
	}
	return &submission, nil
}

func (q *QuizSubmissionPostgreSQL) BestScores(ctx context.Context, tx *gorm.DB, enrollmentID uint) (map[uint]float64, error) {
	var rows []struct {
		LessonID uint
		Best     float64
	}
	if err := q.getDB(tx).WithContext(ctx).
		Model(&models.QuizSubmission{}).
		Select("lesson_id, MAX(score) AS best").
		Where("enrollment_id = ?", enrollmentID).
		Group("lesson_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get best quiz scores: %w", err)
	}

	scores := make(map[uint]float64, len(rows))
	for _, row := range rows {
		scores[row.LessonID] = row.Best
	}
	return scores, nil
}
