package repository

import (
	"context"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id uint) (*model.Enrollment, error) {
	var e model.Enrollment
	if err := r.DB.WithContext(ctx).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrEnrollmentNotFound
		}
		return nil, err
	}
	return &e, nil
}

// MarkCompleted flips an ACTIVE enrollment to COMPLETED. It reports whether
// this call made the change.
func (r *EnrollmentRepository) MarkCompleted(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Enrollment{}).
		Where("id = ? AND status = ?", id, model.EnrollmentActive).
		Updates(map[string]interface{}{
			"status":       model.EnrollmentCompleted,
			"completed_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

// Delete permanently removes an enrollment together with everything it owns.
// Rows are purged rather than soft-deleted so the (user, course) and active
// attempt unique keys are free for a later enrollment.
func (r *EnrollmentRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Unscoped()
		if err := tx.Where("enrollment_id = ?", id).Delete(&model.LessonProgress{}).Error; err != nil {
			return err
		}
		if err := tx.Where("enrollment_id = ?", id).Delete(&model.AssessmentAttempt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("enrollment_id = ?", id).Delete(&model.Certificate{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Enrollment{}, id).Error
	})
}
