package service

import (
	"course_progress_backend/internal/model"
	"testing"
)

func TestAutoGrade(t *testing.T) {
	tests := []struct {
		name        string
		variant     model.QuestionVariant
		answer      model.SubmittedAnswer
		wantCorrect bool
		wantManual  bool
	}{
		{"choice right", twoChoice, choice(0), true, false},
		{"choice wrong", twoChoice, choice(1), false, false},
		{"true false right", model.TrueFalse{Correct: false}, truth(false), true, false},
		{"true false wrong", model.TrueFalse{Correct: true}, truth(false), false, false},
		{"short answer exact", model.ShortAnswer{Correct: "goroutine"}, text("goroutine"), true, false},
		{"short answer case and spacing", model.ShortAnswer{Correct: "Wait Group"}, text("  wait   group "), true, false},
		{"short answer wrong", model.ShortAnswer{Correct: "mutex"}, text("channel"), false, false},
		{"essay is manual", model.Essay{}, text("anything"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			correct, manual := autoGrade(tt.variant, tt.answer)
			if correct != tt.wantCorrect || manual != tt.wantManual {
				t.Errorf("autoGrade = (%v, %v), want (%v, %v)", correct, manual, tt.wantCorrect, tt.wantManual)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		score, max, want int
	}{
		{0, 0, 0},
		{5, 10, 50},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
		{0, 7, 0},
	}
	for _, tt := range tests {
		if got := percentage(tt.score, tt.max); got != tt.want {
			t.Errorf("percentage(%d, %d) = %d, want %d", tt.score, tt.max, got, tt.want)
		}
	}
}

func TestScoreSheet(t *testing.T) {
	mk := func(id uint, v model.QuestionVariant, points, negative int) model.AssessmentQuestion {
		qt, key := model.NewQuestionKey(v)
		q := model.AssessmentQuestion{Type: qt, Key: key, Points: points, NegativePoints: negative}
		q.ID = id
		return q
	}

	questions := []model.AssessmentQuestion{
		mk(1, twoChoice, 4, 2),
		mk(2, model.ShortAnswer{Correct: "select"}, 4, 2),
		mk(3, model.Essay{}, 2, 0),
	}

	t.Run("essay pending", func(t *testing.T) {
		sheet, err := scoreSheet(questions, model.AnswerSheet{1: choice(0), 2: text("Select"), 3: text("...")}, true, nil)
		if err != nil {
			t.Fatal(err)
		}
		if sheet.Score != 8 || sheet.MaxScore != 10 || sheet.Percentage != 80 || !sheet.NeedsManual {
			t.Errorf("sheet = %+v", sheet)
		}
		if !sheet.Results[3].NeedsManual {
			t.Error("essay result should wait for a grader")
		}
	})

	t.Run("unanswered essay needs no grader", func(t *testing.T) {
		sheet, err := scoreSheet(questions, model.AnswerSheet{1: choice(0)}, true, nil)
		if err != nil {
			t.Fatal(err)
		}
		if sheet.NeedsManual || sheet.Score != 4 || sheet.Results[2].Answered {
			t.Errorf("sheet = %+v", sheet)
		}
	})

	t.Run("manual points applied", func(t *testing.T) {
		awarded := 2
		manual := model.QuestionResults{3: {Answered: true, NeedsManual: true, ManualPoints: &awarded, GraderID: 5}}
		sheet, err := scoreSheet(questions, model.AnswerSheet{1: choice(1), 2: text("select"), 3: text("...")}, true, manual)
		if err != nil {
			t.Fatal(err)
		}
		// -2 floors to 0, then +4, then +2
		if sheet.Score != 6 || sheet.NeedsManual {
			t.Errorf("sheet = %+v", sheet)
		}
		if r := sheet.Results[3]; !r.Correct || r.Awarded != 2 || r.GraderID != 5 {
			t.Errorf("essay result = %+v", r)
		}
	})

	t.Run("no negative marking", func(t *testing.T) {
		sheet, err := scoreSheet(questions[:2], model.AnswerSheet{1: choice(1), 2: text("range")}, false, nil)
		if err != nil {
			t.Fatal(err)
		}
		if sheet.Score != 0 || sheet.Results[1].Awarded != 0 {
			t.Errorf("sheet = %+v", sheet)
		}
	})
}
