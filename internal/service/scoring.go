package service

import (
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/util"
	"math"
	"strings"
)

// gradedSheet is the result of scoring one answer sheet against an assessment.
type gradedSheet struct {
	Score       int
	MaxScore    int
	Percentage  int
	NeedsManual bool
	Results     model.QuestionResults
}

// validateAnswers rejects the whole sheet if any entry names an unknown
// question or does not have the shape its question type expects.
func validateAnswers(questions []model.AssessmentQuestion, answers model.AnswerSheet) error {
	byID := make(map[uint]model.AssessmentQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for qid, ans := range answers {
		q, ok := byID[qid]
		if !ok {
			return util.NewValidationError("question %d does not belong to this assessment", qid)
		}
		variant, err := q.Variant()
		if err != nil {
			return err
		}
		if err := checkShape(qid, variant, ans); err != nil {
			return err
		}
	}
	return nil
}

func checkShape(qid uint, variant model.QuestionVariant, ans model.SubmittedAnswer) error {
	set := 0
	for _, present := range []bool{ans.Choice != nil, ans.Bool != nil, ans.Text != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return util.NewValidationError("answer to question %d must set exactly one of choice, bool or text", qid)
	}

	switch v := variant.(type) {
	case model.MultipleChoice:
		if ans.Choice == nil {
			return util.NewValidationError("question %d expects a choice index", qid)
		}
		if *ans.Choice < 0 || *ans.Choice >= len(v.Options) {
			return util.NewValidationError("choice %d is out of range for question %d", *ans.Choice, qid)
		}
	case model.TrueFalse:
		if ans.Bool == nil {
			return util.NewValidationError("question %d expects true or false", qid)
		}
	case model.ShortAnswer, model.Essay:
		if ans.Text == nil {
			return util.NewValidationError("question %d expects a text answer", qid)
		}
	}
	return nil
}

// autoGrade compares one answer with the key. Essays are never auto-graded.
func autoGrade(variant model.QuestionVariant, ans model.SubmittedAnswer) (correct bool, manual bool) {
	switch v := variant.(type) {
	case model.MultipleChoice:
		return *ans.Choice == v.CorrectIndex, false
	case model.TrueFalse:
		return *ans.Bool == v.Correct, false
	case model.ShortAnswer:
		return normalizeText(*ans.Text) == normalizeText(v.Correct), false
	case model.Essay:
		return false, true
	}
	return false, true
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// scoreSheet grades answers in question order. The running total never drops
// below zero. manual holds essay points already awarded by a grader; essays
// without an entry leave the sheet pending.
func scoreSheet(questions []model.AssessmentQuestion, answers model.AnswerSheet, negativeMarking bool, manual model.QuestionResults) (gradedSheet, error) {
	sheet := gradedSheet{Results: make(model.QuestionResults, len(questions))}
	total := 0

	for _, q := range questions {
		variant, err := q.Variant()
		if err != nil {
			return gradedSheet{}, err
		}
		sheet.MaxScore += q.Points

		ans, answered := answers[q.ID]
		res := model.QuestionResult{Answered: answered}

		if _, isEssay := variant.(model.Essay); isEssay {
			if prev, ok := manual[q.ID]; ok && prev.ManualPoints != nil {
				res = prev
				res.Answered = answered
				res.NeedsManual = false
				res.Awarded = *prev.ManualPoints
				res.Correct = *prev.ManualPoints == q.Points
			} else if answered {
				res.NeedsManual = true
				sheet.NeedsManual = true
			}
		} else if answered {
			correct, _ := autoGrade(variant, ans)
			res.Correct = correct
			switch {
			case correct:
				res.Awarded = q.Points
			case negativeMarking && q.NegativePoints > 0:
				res.Awarded = -q.NegativePoints
			}
		}

		total += res.Awarded
		if total < 0 {
			total = 0
		}
		sheet.Results[q.ID] = res
	}

	sheet.Score = total
	sheet.Percentage = percentage(total, sheet.MaxScore)
	return sheet, nil
}

// percentage rounds to the nearest integer and is 0 when nothing is scorable.
func percentage(score, max int) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(float64(score) / float64(max) * 100))
}
