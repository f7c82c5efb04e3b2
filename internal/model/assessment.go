package model

import (
	"errors"
	"time"
)

type AssessmentLevel string

const (
	LevelLessonQuiz       AssessmentLevel = "LESSON_QUIZ"
	LevelModuleAssessment AssessmentLevel = "MODULE_ASSESSMENT"
	LevelCourseFinal      AssessmentLevel = "COURSE_FINAL"
)

// swagger:model Assessment
type Assessment struct {
	BaseModel
	CourseID           uint            `gorm:"index;type:bigint unsigned;not null" json:"courseId"`
	LessonID           *uint           `gorm:"type:bigint unsigned" json:"lessonId,omitempty"` // set for LESSON_QUIZ
	Title              string          `gorm:"size:255;not null" json:"title"`
	Level              AssessmentLevel `gorm:"size:30;not null" json:"level"`
	PassingScore       int             `gorm:"not null" json:"passingScore"` // percentage
	MaxAttempts        *int            `json:"maxAttempts,omitempty"`
	TimeLimitMinutes   *int            `json:"timeLimitMinutes,omitempty"`
	IsRequired         bool            `gorm:"not null" json:"isRequired"`
	ShowCorrectAnswers bool            `gorm:"default:false" json:"showCorrectAnswers"`
	AllowRetake        bool            `gorm:"not null" json:"allowRetake"`
	NegativeMarking    bool            `gorm:"default:false" json:"negativeMarking"`
	AvailableFrom      *time.Time      `json:"availableFrom,omitempty"`
	AvailableUntil     *time.Time      `json:"availableUntil,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (a Assessment) Validate() error {
	if a.PassingScore < 0 || a.PassingScore > 100 {
		return errors.New("passing score must be between 0 and 100")
	}
	if a.MaxAttempts != nil && *a.MaxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if a.TimeLimitMinutes != nil && *a.TimeLimitMinutes < 0 {
		return errors.New("time limit must not be negative")
	}
	if a.AvailableFrom != nil && a.AvailableUntil != nil && a.AvailableUntil.Before(*a.AvailableFrom) {
		return errors.New("availability window ends before it starts")
	}
	return nil
}

// TimeLimit is zero when the assessment is untimed.
func (a Assessment) TimeLimit() time.Duration {
	if a.TimeLimitMinutes == nil || *a.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*a.TimeLimitMinutes) * time.Minute
}

// IsAvailable reports whether now falls inside the availability window.
func (a Assessment) IsAvailable(now time.Time) bool {
	if a.AvailableFrom != nil && now.Before(*a.AvailableFrom) {
		return false
	}
	if a.AvailableUntil != nil && now.After(*a.AvailableUntil) {
		return false
	}
	return true
}
