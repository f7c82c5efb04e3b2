package util

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindStateConflict ErrorKind = "STATE_CONFLICT"
	KindAvailability  ErrorKind = "AVAILABILITY"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindPermission    ErrorKind = "PERMISSION"
)

// AppError is a structured error with a stable code for API clients.
type AppError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches on code so that wrapped copies with a different message still match the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(format string, args ...interface{}) *AppError {
	return ErrValidation.WithMessage(format, args...)
}

// AsAppError extracts an AppError from err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

var (
	ErrValidation       = &AppError{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: "validation failed"}
	ErrPermissionDenied = &AppError{Kind: KindPermission, Code: "PERMISSION_DENIED", Message: "permission denied"}

	ErrEnrollmentNotFound = &AppError{Kind: KindNotFound, Code: "ENROLLMENT_NOT_FOUND", Message: "enrollment not found"}
	ErrCourseNotFound     = &AppError{Kind: KindNotFound, Code: "COURSE_NOT_FOUND", Message: "course not found"}
	ErrLessonNotFound     = &AppError{Kind: KindNotFound, Code: "LESSON_NOT_FOUND", Message: "lesson not found"}
	ErrAssessmentNotFound = &AppError{Kind: KindNotFound, Code: "ASSESSMENT_NOT_FOUND", Message: "assessment not found"}
	ErrAttemptNotFound    = &AppError{Kind: KindNotFound, Code: "ATTEMPT_NOT_FOUND", Message: "attempt not found"}

	ErrAttemptLimitExceeded     = &AppError{Kind: KindStateConflict, Code: "ATTEMPT_LIMIT_EXCEEDED", Message: "no attempts left for this assessment"}
	ErrAttemptAlreadyInProgress = &AppError{Kind: KindStateConflict, Code: "ATTEMPT_ALREADY_IN_PROGRESS", Message: "an attempt is already in progress"}
	ErrRetakeNotAllowed         = &AppError{Kind: KindStateConflict, Code: "RETAKE_NOT_ALLOWED", Message: "this assessment cannot be retaken"}
	ErrAttemptNotActive         = &AppError{Kind: KindStateConflict, Code: "ATTEMPT_NOT_ACTIVE", Message: "attempt is not in progress"}
	ErrAttemptExpired           = &AppError{Kind: KindStateConflict, Code: "ATTEMPT_EXPIRED", Message: "attempt time limit has elapsed"}
	ErrNotAwaitingGrading       = &AppError{Kind: KindStateConflict, Code: "NOT_AWAITING_GRADING", Message: "attempt has no pending manual grading"}
	ErrNotEligible              = &AppError{Kind: KindStateConflict, Code: "NOT_ELIGIBLE", Message: "enrollment is not eligible for a certificate"}

	ErrAssessmentUnavailable = &AppError{Kind: KindAvailability, Code: "ASSESSMENT_UNAVAILABLE", Message: "assessment is outside its availability window"}
)
