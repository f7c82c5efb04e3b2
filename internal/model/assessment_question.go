package model

import (
	"fmt"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionEssay          QuestionType = "ESSAY"
)

// AnswerKey is the stored form of a question's correct answer. Only the
// fields belonging to the question type are meaningful.
type AnswerKey struct {
	Options      []string `json:"options,omitempty"`
	CorrectIndex int      `json:"correctIndex,omitempty"`
	CorrectBool  bool     `json:"correctBool,omitempty"`
	CorrectText  string   `json:"correctText,omitempty"`
	RubricNotes  string   `json:"rubricNotes,omitempty"`
}

// AssessmentQuestion belongs to exactly one assessment.
// swagger:model AssessmentQuestion
type AssessmentQuestion struct {
	BaseModel
	AssessmentID   uint                          `gorm:"index;type:bigint unsigned;not null" json:"assessmentId"`
	Type           QuestionType                  `gorm:"size:30;not null" json:"type"`
	Prompt         string                        `gorm:"type:text" json:"prompt"`
	Key            datatypes.JSONType[AnswerKey] `json:"key"`
	Points         int                           `gorm:"default:0" json:"points"`
	NegativePoints int                           `gorm:"default:0" json:"negativePoints"`
	SortOrder      int                           `gorm:"default:0" json:"sortOrder"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}

// QuestionVariant is the typed view of a question's answer key.
type QuestionVariant interface {
	questionType() QuestionType
}

type MultipleChoice struct {
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

type TrueFalse struct {
	Correct bool `json:"correct"`
}

type ShortAnswer struct {
	Correct string `json:"correct"`
}

type Essay struct {
	RubricNotes string `json:"rubricNotes"`
}

func (MultipleChoice) questionType() QuestionType { return QuestionMultipleChoice }
func (TrueFalse) questionType() QuestionType      { return QuestionTrueFalse }
func (ShortAnswer) questionType() QuestionType    { return QuestionShortAnswer }
func (Essay) questionType() QuestionType          { return QuestionEssay }

// Variant decodes the answer key according to the question type.
func (q AssessmentQuestion) Variant() (QuestionVariant, error) {
	key := q.Key.Data()
	switch q.Type {
	case QuestionMultipleChoice:
		if key.CorrectIndex < 0 || key.CorrectIndex >= len(key.Options) {
			return nil, fmt.Errorf("question %d: correct index %d out of range", q.ID, key.CorrectIndex)
		}
		return MultipleChoice{Options: key.Options, CorrectIndex: key.CorrectIndex}, nil
	case QuestionTrueFalse:
		return TrueFalse{Correct: key.CorrectBool}, nil
	case QuestionShortAnswer:
		return ShortAnswer{Correct: key.CorrectText}, nil
	case QuestionEssay:
		return Essay{RubricNotes: key.RubricNotes}, nil
	}
	return nil, fmt.Errorf("question %d: unknown question type %q", q.ID, q.Type)
}

// NewQuestionKey builds the stored key from a typed variant.
func NewQuestionKey(v QuestionVariant) (QuestionType, datatypes.JSONType[AnswerKey]) {
	var key AnswerKey
	switch x := v.(type) {
	case MultipleChoice:
		key.Options = x.Options
		key.CorrectIndex = x.CorrectIndex
	case TrueFalse:
		key.CorrectBool = x.Correct
	case ShortAnswer:
		key.CorrectText = x.Correct
	case Essay:
		key.RubricNotes = x.RubricNotes
	}
	return v.questionType(), datatypes.NewJSONType(key)
}
