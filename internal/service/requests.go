package service

import "course_progress_backend/internal/model"

type StartAttemptRequest struct {
	EnrollmentID uint `json:"enrollmentId" binding:"required"`
}

// SubmitAnswersRequest carries the answer sheet keyed by question id.
type SubmitAnswersRequest struct {
	Answers model.AnswerSheet `json:"answers"`
}

type ManualGradeRequest struct {
	Grades []EssayGrade `json:"grades" binding:"required,dive"`
}
