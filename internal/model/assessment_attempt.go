package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptCompleted  AttemptStatus = "COMPLETED"
	AttemptAbandoned  AttemptStatus = "ABANDONED"
)

type AbandonReason string

const (
	AbandonTimeout   AbandonReason = "TIMEOUT"
	AbandonReset     AbandonReason = "RESET"
	AbandonWithdrawn AbandonReason = "WITHDRAWN"
)

// SubmittedAnswer holds one response. Exactly one field is set and it must
// match the question type: Choice for MULTIPLE_CHOICE, Bool for TRUE_FALSE,
// Text for SHORT_ANSWER and ESSAY.
type SubmittedAnswer struct {
	Choice *int    `json:"choice,omitempty"`
	Bool   *bool   `json:"bool,omitempty"`
	Text   *string `json:"text,omitempty"`
}

// AnswerSheet maps question id to the submitted answer.
type AnswerSheet map[uint]SubmittedAnswer

// QuestionResult is the grading outcome of one question.
type QuestionResult struct {
	Answered     bool       `json:"answered"`
	Correct      bool       `json:"correct"`
	Awarded      int        `json:"awarded"`
	NeedsManual  bool       `json:"needsManual,omitempty"`
	GraderID     uint       `json:"graderId,omitempty"`
	GraderNote   string     `json:"graderNote,omitempty"`
	ManualPoints *int       `json:"manualPoints,omitempty"`
	GradedAt     *time.Time `json:"gradedAt,omitempty"`
}

type QuestionResults map[uint]QuestionResult

// AssessmentAttempt is one pass through an assessment by a user within an enrollment.
// swagger:model AssessmentAttempt
type AssessmentAttempt struct {
	BaseModel
	AssessmentID       uint                                `gorm:"index:idx_attempt_user_assessment;type:bigint unsigned;not null" json:"assessmentId"`
	UserID             uint                                `gorm:"index:idx_attempt_user_assessment;type:bigint unsigned;not null" json:"userId"`
	EnrollmentID       uint                                `gorm:"index;type:bigint unsigned;not null" json:"enrollmentId"`
	Status             AttemptStatus                       `gorm:"size:20;not null;default:'IN_PROGRESS'" json:"status"`
	AbandonReason      AbandonReason                       `gorm:"size:20" json:"abandonReason,omitempty"`
	Score              int                                 `gorm:"default:0" json:"score"`
	MaxScore           int                                 `gorm:"default:0" json:"maxScore"`
	Percentage         int                                 `gorm:"default:0" json:"percentage"`
	Passed             bool                                `gorm:"default:false" json:"passed"`
	NeedsManualGrading bool                                `gorm:"default:false" json:"needsManualGrading"`
	StartedAt          time.Time                           `gorm:"index" json:"startedAt"`
	CompletedAt        *time.Time                          `json:"completedAt,omitempty"`
	TimeSpentSeconds   int                                 `gorm:"default:0" json:"timeSpentSeconds"`
	Answers            datatypes.JSONType[AnswerSheet]     `json:"answers"`
	QuestionResults    datatypes.JSONType[QuestionResults] `json:"questionResults"`
	// ActiveKey is non-null only while IN_PROGRESS. The unique index makes a
	// second concurrent IN_PROGRESS row for the same user and assessment fail.
	ActiveKey *string `gorm:"size:64;uniqueIndex" json:"-"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}

func ActiveAttemptKey(userID, assessmentID uint) string {
	return fmt.Sprintf("%d:%d", userID, assessmentID)
}

// Deadline returns the submission deadline, or false when untimed.
func (a AssessmentAttempt) Deadline(limit time.Duration) (time.Time, bool) {
	if limit <= 0 {
		return time.Time{}, false
	}
	return a.StartedAt.Add(limit), true
}
