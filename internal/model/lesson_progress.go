package model

import "time"

// LessonProgress is one row per (enrollment, lesson) pair.
// swagger:model LessonProgress
type LessonProgress struct {
	BaseModel
	EnrollmentID         uint       `gorm:"uniqueIndex:idx_enrollment_lesson;type:bigint unsigned;not null" json:"enrollmentId"`
	LessonID             uint       `gorm:"uniqueIndex:idx_enrollment_lesson;type:bigint unsigned;not null" json:"lessonId"`
	Completed            bool       `gorm:"default:false" json:"completed"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	LastPositionSeconds  int        `gorm:"default:0" json:"lastPositionSeconds"`
	WatchDurationSeconds int        `gorm:"default:0" json:"watchDurationSeconds"`
	LastEventAt          *time.Time `json:"lastEventAt,omitempty"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}

// LessonProgressUpdate is one client interaction with a lesson. Nil fields are left untouched.
type LessonProgressUpdate struct {
	PositionSeconds      *int       `json:"position,omitempty"`
	WatchDurationSeconds *int       `json:"watchDuration,omitempty"`
	Completed            *bool      `json:"completed,omitempty"`
	OccurredAt           *time.Time `json:"occurredAt,omitempty"`
}
