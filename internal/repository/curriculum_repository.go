package repository

import (
	"context"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/util"
	"course_progress_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CurriculumRepository reads the course tree. Curriculum authoring happens
// elsewhere, so the tree is cached in redis and invalidated explicitly.
type CurriculumRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	TTL   time.Duration
}

func NewCurriculumRepository(db *gorm.DB, rdb *redis.Client, ttl time.Duration) *CurriculumRepository {
	return &CurriculumRepository{DB: db, Redis: rdb, TTL: ttl}
}

// GetCurriculum returns the course tree, from cache when possible.
func (r *CurriculumRepository) GetCurriculum(ctx context.Context, courseID uint) (*model.Curriculum, error) {
	key := fmt.Sprintf(util.CurriculumCacheKey, courseID)
	if r.Redis != nil {
		raw, err := r.Redis.Get(ctx, key).Bytes()
		if err == nil {
			var cur model.Curriculum
			if err := json.Unmarshal(raw, &cur); err == nil {
				return &cur, nil
			}
			logger.Log.Warn("Discarding unreadable curriculum cache entry", zap.Uint("courseID", courseID))
		} else if err != redis.Nil {
			logger.Log.Warn("Curriculum cache read failed", zap.Uint("courseID", courseID), zap.Error(err))
		}
	}

	cur, err := r.LoadCurriculum(ctx, courseID)
	if err != nil {
		return nil, err
	}

	if r.Redis != nil && r.TTL > 0 {
		if raw, err := json.Marshal(cur); err == nil {
			if err := r.Redis.Set(ctx, key, raw, r.TTL).Err(); err != nil {
				logger.Log.Warn("Curriculum cache write failed", zap.Uint("courseID", courseID), zap.Error(err))
			}
		}
	}
	return cur, nil
}

// LoadCurriculum reads the tree straight from the database.
func (r *CurriculumRepository) LoadCurriculum(ctx context.Context, courseID uint) (*model.Curriculum, error) {
	db := r.DB.WithContext(ctx)

	var course model.Course
	if err := db.First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCourseNotFound
		}
		return nil, err
	}

	var modules []model.CurriculumModule
	err := db.Where("course_id = ?", courseID).
		Preload("Lessons", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order ASC, id ASC")
		}).
		Order("sort_order ASC, id ASC").
		Find(&modules).Error
	if err != nil {
		return nil, err
	}

	var assessments []model.Assessment
	if err := db.Where("course_id = ?", courseID).Order("id ASC").Find(&assessments).Error; err != nil {
		return nil, err
	}

	cur := &model.Curriculum{
		Course:      course,
		Modules:     modules,
		Assessments: make(map[uint]model.Assessment, len(assessments)),
		Questions:   make(map[uint][]model.AssessmentQuestion, len(assessments)),
	}
	if len(assessments) == 0 {
		return cur, nil
	}

	ids := make([]uint, 0, len(assessments))
	for _, a := range assessments {
		cur.Assessments[a.ID] = a
		ids = append(ids, a.ID)
	}

	var questions []model.AssessmentQuestion
	if err := db.Where("assessment_id IN ?", ids).Order("sort_order ASC, id ASC").Find(&questions).Error; err != nil {
		return nil, err
	}
	for _, q := range questions {
		cur.Questions[q.AssessmentID] = append(cur.Questions[q.AssessmentID], q)
	}
	return cur, nil
}

// Invalidate drops the cached tree after the curriculum changed.
func (r *CurriculumRepository) Invalidate(ctx context.Context, courseID uint) error {
	if r.Redis == nil {
		return nil
	}
	return r.Redis.Del(ctx, fmt.Sprintf(util.CurriculumCacheKey, courseID)).Err()
}

func (r *CurriculumRepository) FindAssessment(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAssessmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindQuestions returns the questions of an assessment in sort order.
func (r *CurriculumRepository) FindQuestions(ctx context.Context, assessmentID uint) ([]model.AssessmentQuestion, error) {
	var questions []model.AssessmentQuestion
	err := r.DB.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("sort_order ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

// FindLesson returns a lesson together with the course it belongs to.
func (r *CurriculumRepository) FindLesson(ctx context.Context, lessonID uint) (*model.Lesson, uint, error) {
	var lesson model.Lesson
	if err := r.DB.WithContext(ctx).First(&lesson, lessonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, util.ErrLessonNotFound
		}
		return nil, 0, err
	}

	var module model.CurriculumModule
	if err := r.DB.WithContext(ctx).Select("id", "course_id").First(&module, lesson.ModuleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, util.ErrLessonNotFound
		}
		return nil, 0, err
	}
	return &lesson, module.CourseID, nil
}

// UpdateVideoDuration stores a probed duration so later requests skip probing.
func (r *CurriculumRepository) UpdateVideoDuration(ctx context.Context, lessonID uint, seconds int) error {
	return r.DB.WithContext(ctx).Model(&model.Lesson{}).
		Where("id = ?", lessonID).
		Update("video_duration_seconds", seconds).Error
}
