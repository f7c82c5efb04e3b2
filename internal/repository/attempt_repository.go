package repository

import (
	"context"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Create inserts a new IN_PROGRESS attempt. The unique active key turns a
// concurrent second start into ErrAttemptAlreadyInProgress.
func (r *AttemptRepository) Create(ctx context.Context, a *model.AssessmentAttempt) error {
	key := model.ActiveAttemptKey(a.UserID, a.AssessmentID)
	a.Status = model.AttemptInProgress
	a.ActiveKey = &key

	if err := r.DB.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return util.ErrAttemptAlreadyInProgress
		}
		return err
	}
	return nil
}

func (r *AttemptRepository) FindByID(ctx context.Context, id uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindActive returns the IN_PROGRESS attempt for the pair, or nil.
func (r *AttemptRepository) FindActive(ctx context.Context, userID, assessmentID uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.WithContext(ctx).
		Where("active_key = ?", model.ActiveAttemptKey(userID, assessmentID)).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByUserAndAssessment returns attempts oldest first.
func (r *AttemptRepository) ListByUserAndAssessment(ctx context.Context, userID, assessmentID uint) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Order("started_at ASC, id ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByEnrollment(ctx context.Context, enrollmentID uint) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	err := r.DB.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("started_at ASC, id ASC").
		Find(&attempts).Error
	return attempts, err
}

// ListInProgress returns every open attempt, optionally limited to attempts started before the cutoff.
func (r *AttemptRepository) ListInProgress(ctx context.Context, startedBefore *time.Time) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	db := r.DB.WithContext(ctx).Where("status = ?", model.AttemptInProgress)
	if startedBefore != nil {
		db = db.Where("started_at < ?", *startedBefore)
	}
	err := db.Order("started_at ASC, id ASC").Find(&attempts).Error
	return attempts, err
}

// ListPendingManual returns completed attempts that still wait for essay grading.
// assessmentID 0 lists all of them.
func (r *AttemptRepository) ListPendingManual(ctx context.Context, assessmentID uint) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	db := r.DB.WithContext(ctx).
		Where("status = ? AND needs_manual_grading = ?", model.AttemptCompleted, true)
	if assessmentID != 0 {
		db = db.Where("assessment_id = ?", assessmentID)
	}
	err := db.Order("completed_at ASC, id ASC").Find(&attempts).Error
	return attempts, err
}

// Complete writes the graded result of an IN_PROGRESS attempt. The update is
// conditional on the stored status so a terminal attempt is never overwritten.
func (r *AttemptRepository) Complete(ctx context.Context, a *model.AssessmentAttempt) error {
	res := r.DB.WithContext(ctx).Model(&model.AssessmentAttempt{}).
		Where("id = ? AND status = ?", a.ID, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":               model.AttemptCompleted,
			"score":                a.Score,
			"max_score":            a.MaxScore,
			"percentage":           a.Percentage,
			"passed":               a.Passed,
			"needs_manual_grading": a.NeedsManualGrading,
			"completed_at":         a.CompletedAt,
			"time_spent_seconds":   a.TimeSpentSeconds,
			"answers":              a.Answers,
			"question_results":     a.QuestionResults,
			"active_key":           nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrAttemptNotActive
	}
	a.Status = model.AttemptCompleted
	a.ActiveKey = nil
	return nil
}

// Abandon moves an IN_PROGRESS attempt to ABANDONED. It reports false when the
// attempt had already left IN_PROGRESS.
func (r *AttemptRepository) Abandon(ctx context.Context, id uint, reason model.AbandonReason, at time.Time, timeSpent int) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.AssessmentAttempt{}).
		Where("id = ? AND status = ?", id, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":             model.AttemptAbandoned,
			"abandon_reason":     reason,
			"completed_at":       at,
			"time_spent_seconds": timeSpent,
			"active_key":         nil,
		})
	return res.RowsAffected > 0, res.Error
}

// SaveManualGrade stores essay grades on an attempt awaiting them. The attempt
// leaves the pending state and becomes immutable.
func (r *AttemptRepository) SaveManualGrade(ctx context.Context, a *model.AssessmentAttempt) error {
	res := r.DB.WithContext(ctx).Model(&model.AssessmentAttempt{}).
		Where("id = ? AND status = ? AND needs_manual_grading = ?", a.ID, model.AttemptCompleted, true).
		Updates(map[string]interface{}{
			"score":                a.Score,
			"max_score":            a.MaxScore,
			"percentage":           a.Percentage,
			"passed":               a.Passed,
			"needs_manual_grading": false,
			"question_results":     a.QuestionResults,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrNotAwaitingGrading
	}
	a.NeedsManualGrading = false
	return nil
}
