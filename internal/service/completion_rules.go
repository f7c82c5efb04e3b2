package service

import (
	"course_progress_backend/internal/model"
)

// AssessmentOutcome pairs an assessment with the learner's best attempt at it.
// A nil Best means no gradable attempt exists yet.
type AssessmentOutcome struct {
	Assessment model.Assessment
	Best       *model.AssessmentAttempt
}

func (o *AssessmentOutcome) Required() bool {
	return o != nil && o.Assessment.IsRequired
}

func (o *AssessmentOutcome) Passed() bool {
	return o != nil && o.Best != nil && o.Best.Passed
}

// satisfied is true when the assessment does not block completion.
func (o *AssessmentOutcome) satisfied() bool {
	return !o.Required() || o.Passed()
}

// IsLessonComplete applies the lesson rule. VIDEO and ARTICLE lessons only
// need the completion flag, even with an embedded quiz. QUIZ and ASSESSMENT
// lessons additionally need a passed best attempt unless the quiz is
// informational.
func IsLessonComplete(lesson model.Lesson, progress *model.LessonProgress, quiz *AssessmentOutcome) bool {
	flagged := progress != nil && progress.Completed

	switch lesson.ContentKind {
	case model.ContentQuiz, model.ContentAssessment:
		if quiz == nil {
			return flagged
		}
		return flagged && quiz.satisfied()
	default:
		return flagged
	}
}

// IsModuleComplete is true when every lesson is complete and the module
// assessment, if required, has been passed.
func IsModuleComplete(module model.CurriculumModule, lessonComplete map[uint]bool, moduleAssessment *AssessmentOutcome) bool {
	for _, l := range module.Lessons {
		if !lessonComplete[l.ID] {
			return false
		}
	}
	return moduleAssessment.satisfied()
}

// IsCourseComplete combines the two policy switches with the course final.
// Zero modules satisfy the module switch vacuously.
func IsCourseComplete(policy model.CompletionPolicy, moduleComplete map[uint]bool, allAssessmentsPassed bool, final *AssessmentOutcome) bool {
	if policy.RequireAllModulesComplete {
		for _, done := range moduleComplete {
			if !done {
				return false
			}
		}
	}
	if policy.RequireAllAssessmentsPassed && !allAssessmentsPassed {
		return false
	}
	return final.satisfied()
}
