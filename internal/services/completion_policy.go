package services

import (
	"fmt"

	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

type CompletionMode string

const (
	CompletionAllLessons      CompletionMode = "all_lessons"
	CompletionRequiredLessons CompletionMode = "required_lessons"
	CompletionThreshold       CompletionMode = "threshold"
)

// CompletionPolicy decides when an enrollment counts as completed.
// QuizPassingScore > 0 additionally requires a passing best score on every
// counted quiz or assignment lesson.
type CompletionPolicy struct {
	Mode             CompletionMode
	Threshold        int
	QuizPassingScore float64
}

func DefaultCompletionPolicy() CompletionPolicy {
	return CompletionPolicy{Mode: CompletionAllLessons, Threshold: 100}
}

func NewCompletionPolicy(cfg config.CompletionConfig) (CompletionPolicy, error) {
	policy := CompletionPolicy{
		Mode:             CompletionMode(cfg.Mode),
		Threshold:        cfg.Threshold,
		QuizPassingScore: cfg.QuizPassingScore,
	}
	if policy.Mode == "" {
		policy.Mode = CompletionAllLessons
	}

	switch policy.Mode {
	case CompletionAllLessons, CompletionRequiredLessons:
	case CompletionThreshold:
		if policy.Threshold < 1 || policy.Threshold > 100 {
			return CompletionPolicy{}, fmt.Errorf("completion threshold must be between 1 and 100, got %d", policy.Threshold)
		}
	default:
		return CompletionPolicy{}, fmt.Errorf("unknown completion mode %q", policy.Mode)
	}
	return policy, nil
}

// CalculateProgress returns floor(100 * completed / total) over the course's
// current lessons. Ids of lessons no longer in the course are ignored.
func CalculateProgress(lessons []*models.Lesson, completed []int64) int {
	if len(lessons) == 0 {
		return 0
	}

	done := completedSet(completed)
	count := 0
	for _, l := range lessons {
		if done[l.ID] {
			count++
		}
	}
	return count * 100 / len(lessons)
}

// IsComplete evaluates the policy. bestScores maps lesson id to the best
// submission score and is only consulted when QuizPassingScore > 0.
func (p CompletionPolicy) IsComplete(lessons []*models.Lesson, completed []int64, bestScores map[uint]float64) bool {
	if len(lessons) == 0 {
		return false
	}
	done := completedSet(completed)

	var counted []*models.Lesson
	switch p.Mode {
	case CompletionThreshold:
		if CalculateProgress(lessons, completed) < p.Threshold {
			return false
		}
		for _, l := range lessons {
			if done[l.ID] {
				counted = append(counted, l)
			}
		}
		return p.quizzesPassed(counted, bestScores)
	case CompletionRequiredLessons:
		for _, l := range lessons {
			if l.IsRequired {
				counted = append(counted, l)
			}
		}
		if len(counted) == 0 {
			counted = lessons
		}
	default:
		counted = lessons
	}

	for _, l := range counted {
		if !done[l.ID] {
			return false
		}
	}
	return p.quizzesPassed(counted, bestScores)
}

// NeedsScores reports whether IsComplete reads submission scores.
func (p CompletionPolicy) NeedsScores() bool {
	return p.QuizPassingScore > 0
}

func (p CompletionPolicy) quizzesPassed(lessons []*models.Lesson, bestScores map[uint]float64) bool {
	if !p.NeedsScores() {
		return true
	}
	for _, l := range lessons {
		if !l.Type.IsGraded() {
			continue
		}
		if bestScores[l.ID] < p.QuizPassingScore {
			return false
		}
	}
	return true
}

func completedSet(ids []int64) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[uint(id)] = true
	}
	return set
}
