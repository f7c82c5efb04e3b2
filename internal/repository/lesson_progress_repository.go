package repository

import (
	"context"
	"course_progress_backend/internal/model"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LessonProgressRepository struct {
	DB *gorm.DB
}

func NewLessonProgressRepository(db *gorm.DB) *LessonProgressRepository {
	return &LessonProgressRepository{DB: db}
}

func (r *LessonProgressRepository) ListByEnrollment(ctx context.Context, enrollmentID uint) ([]model.LessonProgress, error) {
	var rows []model.LessonProgress
	err := r.DB.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("lesson_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *LessonProgressRepository) Find(ctx context.Context, enrollmentID, lessonID uint) (*model.LessonProgress, error) {
	var p model.LessonProgress
	err := r.DB.WithContext(ctx).
		Where("enrollment_id = ? AND lesson_id = ?", enrollmentID, lessonID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Ensure creates the row on first interaction. Concurrent first writes both
// succeed: the loser's insert is ignored and it reads the winner's row.
func (r *LessonProgressRepository) Ensure(ctx context.Context, enrollmentID, lessonID uint) (*model.LessonProgress, error) {
	row := model.LessonProgress{EnrollmentID: enrollmentID, LessonID: lessonID}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	p, err := r.Find(ctx, enrollmentID, lessonID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

// UpdatePosition applies a position report only if no newer event was stored.
// It reports whether the row changed.
func (r *LessonProgressRepository) UpdatePosition(ctx context.Context, id uint, position int, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.LessonProgress{}).
		Where("id = ? AND (last_event_at IS NULL OR last_event_at <= ?)", id, at).
		Updates(map[string]interface{}{
			"last_position_seconds": position,
			"last_event_at":         at,
		})
	return res.RowsAffected > 0, res.Error
}

// RaiseWatchDuration keeps the largest reported watch duration.
func (r *LessonProgressRepository) RaiseWatchDuration(ctx context.Context, id uint, seconds int) error {
	return r.DB.WithContext(ctx).Model(&model.LessonProgress{}).
		Where("id = ? AND watch_duration_seconds < ?", id, seconds).
		Update("watch_duration_seconds", seconds).Error
}

// MarkCompleted sets the sticky completion flag. Completion time is kept from the first call.
func (r *LessonProgressRepository) MarkCompleted(ctx context.Context, id uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.LessonProgress{}).
		Where("id = ? AND completed = ?", id, false).
		Updates(map[string]interface{}{
			"completed":    true,
			"completed_at": at,
		}).Error
}
