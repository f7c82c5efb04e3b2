package service

import (
	"context"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/repository"
	"course_progress_backend/internal/util"
	"course_progress_backend/pkg/logger"
	"course_progress_backend/pkg/monitoring"
	"course_progress_backend/pkg/tracing"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// GradeListener is told about every attempt that received a final grade.
type GradeListener interface {
	AfterAttemptGraded(ctx context.Context, attempt *model.AssessmentAttempt, assessment *model.Assessment, now time.Time) error
}

type AttemptService struct {
	Attempts    *repository.AttemptRepository
	Curriculum  *repository.CurriculumRepository
	Enrollments *repository.EnrollmentRepository
	Listener    GradeListener

	policy atomic.Pointer[config.AttemptsConfig]
}

func NewAttemptService(
	attempts *repository.AttemptRepository,
	curriculum *repository.CurriculumRepository,
	enrollments *repository.EnrollmentRepository,
	cfg config.AttemptsConfig,
) *AttemptService {
	s := &AttemptService{
		Attempts:    attempts,
		Curriculum:  curriculum,
		Enrollments: enrollments,
	}
	s.SetPolicy(cfg)
	return s
}

// SetPolicy swaps the attempt policy, used on config reload.
func (s *AttemptService) SetPolicy(cfg config.AttemptsConfig) {
	if cfg.SubmissionGraceSeconds < 0 {
		cfg.SubmissionGraceSeconds = 0
	}
	s.policy.Store(&cfg)
}

func (s *AttemptService) Policy() config.AttemptsConfig {
	return *s.policy.Load()
}

// EssayGrade is a grader's score for one essay question.
type EssayGrade struct {
	QuestionID uint   `json:"questionId" binding:"required"`
	Points     int    `json:"points"`
	Comment    string `json:"comment"`
}

// QuestionReview is one question of a graded attempt as shown to the learner.
type QuestionReview struct {
	QuestionID    uint                   `json:"questionId"`
	Type          model.QuestionType     `json:"type"`
	Prompt        string                 `json:"prompt"`
	Points        int                    `json:"points"`
	Answer        *model.SubmittedAnswer `json:"answer,omitempty"`
	Result        *model.QuestionResult  `json:"result,omitempty"`
	Options       []string               `json:"options,omitempty"`
	CorrectAnswer *model.AnswerKey       `json:"correctAnswer,omitempty"`
}

type AttemptResult struct {
	Attempt   *model.AssessmentAttempt `json:"attempt"`
	Questions []QuestionReview         `json:"questions"`
}

// AttemptHistory is the attempt list plus the attempt that counts.
type AttemptHistory struct {
	Attempts []model.AssessmentAttempt `json:"attempts"`
	Best     *model.AssessmentAttempt  `json:"best"`
}

// Start opens a new attempt. Checks run in this order: ownership and course
// membership, availability window, an already open attempt, retake rule,
// attempt limit. An open attempt past its deadline is expired first.
func (s *AttemptService) Start(ctx context.Context, assessmentID, userID, enrollmentID uint, now time.Time) (*model.AssessmentAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.Start",
		attribute.Int64("assessment.id", int64(assessmentID)),
		attribute.Int64("enrollment.id", int64(enrollmentID)))
	defer span.End()

	assessment, err := s.Curriculum.FindAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if enrollment.CourseID != assessment.CourseID {
		return nil, util.ErrAssessmentNotFound.WithMessage("assessment %d is not part of course %d", assessmentID, enrollment.CourseID)
	}

	if !assessment.IsAvailable(now) {
		return nil, util.ErrAssessmentUnavailable
	}

	active, err := s.Attempts.FindActive(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		deadline, overdue := s.overdue(active, assessment, now)
		if !overdue {
			return nil, util.ErrAttemptAlreadyInProgress
		}
		if err := s.abandon(ctx, active, model.AbandonTimeout, deadline); err != nil {
			return nil, err
		}
	}

	history, err := s.Attempts.ListByUserAndAssessment(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	completed, consumed := s.countAttempts(history)

	if !assessment.AllowRetake && completed > 0 {
		return nil, util.ErrRetakeNotAllowed
	}
	if assessment.MaxAttempts != nil && consumed >= *assessment.MaxAttempts {
		return nil, util.ErrAttemptLimitExceeded.WithMessage("all %d attempts have been used", *assessment.MaxAttempts)
	}

	attempt := &model.AssessmentAttempt{
		AssessmentID:    assessmentID,
		UserID:          userID,
		EnrollmentID:    enrollmentID,
		StartedAt:       now,
		Answers:         datatypes.NewJSONType(model.AnswerSheet{}),
		QuestionResults: datatypes.NewJSONType(model.QuestionResults{}),
	}
	if err := s.Attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	monitoring.AttemptsStarted.WithLabelValues(string(assessment.Level)).Inc()
	logger.Log.Info("Attempt started",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("assessmentID", assessmentID),
		zap.Uint("userID", userID))
	return attempt, nil
}

// countAttempts returns completed attempts and attempts that consume a slot.
// Administrative resets never consume one, withdrawals always do and timeouts
// do when the policy says so.
func (s *AttemptService) countAttempts(history []model.AssessmentAttempt) (completed, consumed int) {
	countExpired := s.Policy().CountExpiredAttempts
	for _, a := range history {
		switch a.Status {
		case model.AttemptCompleted:
			completed++
			consumed++
		case model.AttemptAbandoned:
			switch a.AbandonReason {
			case model.AbandonWithdrawn:
				consumed++
			case model.AbandonTimeout:
				if countExpired {
					consumed++
				}
			}
		}
	}
	return completed, consumed
}

// overdue reports whether an open attempt is past its deadline plus grace.
func (s *AttemptService) overdue(a *model.AssessmentAttempt, assessment *model.Assessment, now time.Time) (time.Time, bool) {
	deadline, timed := a.Deadline(assessment.TimeLimit())
	if !timed {
		return time.Time{}, false
	}
	grace := time.Duration(s.Policy().SubmissionGraceSeconds) * time.Second
	return deadline, now.After(deadline.Add(grace))
}

func (s *AttemptService) abandon(ctx context.Context, a *model.AssessmentAttempt, reason model.AbandonReason, at time.Time) error {
	spent := int(at.Sub(a.StartedAt).Seconds())
	if spent < 0 {
		spent = 0
	}
	changed, err := s.Attempts.Abandon(ctx, a.ID, reason, at, spent)
	if err != nil {
		return err
	}
	if changed {
		a.Status = model.AttemptAbandoned
		a.AbandonReason = reason
		a.CompletedAt = &at
		a.TimeSpentSeconds = spent
		a.ActiveKey = nil
		monitoring.AttemptsAbandoned.WithLabelValues(string(reason)).Inc()
		logger.Log.Info("Attempt abandoned", zap.Uint("attemptID", a.ID), zap.String("reason", string(reason)))
	}
	return nil
}

// loadOwnAttempt fetches an attempt and checks it belongs to userID.
func (s *AttemptService) loadOwnAttempt(ctx context.Context, attemptID, userID uint) (*model.AssessmentAttempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

// Submit scores the answer sheet and completes the attempt. A submission
// after the deadline abandons the attempt and fails with ErrAttemptExpired.
func (s *AttemptService) Submit(ctx context.Context, attemptID, userID uint, answers model.AnswerSheet, now time.Time) (*model.AssessmentAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.Submit", attribute.Int64("attempt.id", int64(attemptID)))
	defer span.End()

	attempt, err := s.loadOwnAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptNotActive
	}

	assessment, err := s.Curriculum.FindAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	if _, overdue := s.overdue(attempt, assessment, now); overdue {
		if err := s.abandon(ctx, attempt, model.AbandonTimeout, now); err != nil {
			return nil, err
		}
		return nil, util.ErrAttemptExpired
	}

	questions, err := s.Curriculum.FindQuestions(ctx, assessment.ID)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = model.AnswerSheet{}
	}
	if err := validateAnswers(questions, answers); err != nil {
		return nil, err
	}

	sheet, err := scoreSheet(questions, answers, assessment.NegativeMarking, nil)
	if err != nil {
		return nil, err
	}

	completedAt := now
	attempt.Score = sheet.Score
	attempt.MaxScore = sheet.MaxScore
	attempt.Percentage = sheet.Percentage
	attempt.NeedsManualGrading = sheet.NeedsManual
	attempt.Passed = !sheet.NeedsManual && sheet.Percentage >= assessment.PassingScore
	attempt.CompletedAt = &completedAt
	attempt.TimeSpentSeconds = int(now.Sub(attempt.StartedAt).Seconds())
	if attempt.TimeSpentSeconds < 0 {
		attempt.TimeSpentSeconds = 0
	}
	attempt.Answers = datatypes.NewJSONType(answers)
	attempt.QuestionResults = datatypes.NewJSONType(sheet.Results)

	if err := s.Attempts.Complete(ctx, attempt); err != nil {
		return nil, err
	}

	monitoring.AttemptsSubmitted.WithLabelValues(string(assessment.Level), monitoring.Outcome(attempt.Passed, attempt.NeedsManualGrading)).Inc()
	logger.Log.Info("Attempt submitted",
		zap.Uint("attemptID", attempt.ID),
		zap.Int("score", attempt.Score),
		zap.Int("percentage", attempt.Percentage),
		zap.Bool("passed", attempt.Passed),
		zap.Bool("needsManualGrading", attempt.NeedsManualGrading))

	if !attempt.NeedsManualGrading {
		s.notifyGraded(ctx, attempt, assessment, now)
	}
	return learnerView(attempt, assessment, false), nil
}

func (s *AttemptService) notifyGraded(ctx context.Context, attempt *model.AssessmentAttempt, assessment *model.Assessment, now time.Time) {
	if s.Listener == nil {
		return
	}
	if err := s.Listener.AfterAttemptGraded(ctx, attempt, assessment, now); err != nil {
		logger.Log.Warn("Post-grading progress update failed",
			zap.Uint("attemptID", attempt.ID),
			zap.Uint("enrollmentID", attempt.EnrollmentID),
			zap.Error(err))
	}
}

// Expire abandons an open attempt on behalf of its owner. An attempt past its
// deadline is recorded as a timeout; otherwise the owner gave up and the
// attempt is recorded as withdrawn.
func (s *AttemptService) Expire(ctx context.Context, attemptID, userID uint, now time.Time) (*model.AssessmentAttempt, error) {
	attempt, err := s.loadOwnAttempt(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptNotActive
	}
	assessment, err := s.Curriculum.FindAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	reason := model.AbandonWithdrawn
	if _, overdue := s.overdue(attempt, assessment, now); overdue {
		reason = model.AbandonTimeout
	}
	return s.transitionToAbandoned(ctx, attempt, reason, now)
}

// Reset abandons an open attempt administratively. Reset attempts never
// count against the attempt limit.
func (s *AttemptService) Reset(ctx context.Context, attemptID uint, now time.Time) (*model.AssessmentAttempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return s.transitionToAbandoned(ctx, attempt, model.AbandonReset, now)
}

func (s *AttemptService) transitionToAbandoned(ctx context.Context, attempt *model.AssessmentAttempt, reason model.AbandonReason, now time.Time) (*model.AssessmentAttempt, error) {
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptNotActive
	}
	if err := s.abandon(ctx, attempt, reason, now); err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptAbandoned {
		// lost a race with a concurrent submit or expire
		return nil, util.ErrAttemptNotActive
	}
	return attempt, nil
}

// ExpireOverdue abandons every open attempt past its deadline and returns how many it closed.
func (s *AttemptService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	open, err := s.Attempts.ListInProgress(ctx, &now)
	if err != nil {
		return 0, err
	}

	assessments := make(map[uint]*model.Assessment)
	expired := 0
	for i := range open {
		a := &open[i]
		assessment, ok := assessments[a.AssessmentID]
		if !ok {
			assessment, err = s.Curriculum.FindAssessment(ctx, a.AssessmentID)
			if err != nil {
				logger.Log.Warn("Skipping attempt with unreadable assessment", zap.Uint("attemptID", a.ID), zap.Error(err))
				continue
			}
			assessments[a.AssessmentID] = assessment
		}

		deadline, overdue := s.overdue(a, assessment, now)
		if !overdue {
			continue
		}
		if err := s.abandon(ctx, a, model.AbandonTimeout, deadline); err != nil {
			return expired, err
		}
		if a.Status == model.AttemptAbandoned {
			expired++
		}
	}
	return expired, nil
}

// ListAttempts returns the user's attempts oldest first together with the best one.
func (s *AttemptService) ListAttempts(ctx context.Context, assessmentID, userID uint) (*AttemptHistory, error) {
	assessment, err := s.Curriculum.FindAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.ListByUserAndAssessment(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		attempts[i] = *learnerView(&attempts[i], assessment, false)
	}
	return &AttemptHistory{Attempts: attempts, Best: BestAttempt(attempts)}, nil
}

// BestAttempt picks the COMPLETED, fully graded attempt with the highest
// percentage. Ties go to the most recent one. Returns nil when none qualifies.
func BestAttempt(attempts []model.AssessmentAttempt) *model.AssessmentAttempt {
	var best *model.AssessmentAttempt
	for i := range attempts {
		a := &attempts[i]
		if a.Status != model.AttemptCompleted || a.NeedsManualGrading {
			continue
		}
		if best == nil || a.Percentage > best.Percentage ||
			(a.Percentage == best.Percentage && moreRecent(a, best)) {
			best = a
		}
	}
	return best
}

func moreRecent(a, b *model.AssessmentAttempt) bool {
	at, bt := a.StartedAt, b.StartedAt
	if a.CompletedAt != nil && b.CompletedAt != nil {
		at, bt = *a.CompletedAt, *b.CompletedAt
	}
	if !at.Equal(bt) {
		return at.After(bt)
	}
	if !a.StartedAt.Equal(b.StartedAt) {
		return a.StartedAt.After(b.StartedAt)
	}
	return a.ID > b.ID
}

// ListPendingManual lists attempts waiting for essay grading. assessmentID 0 lists all.
func (s *AttemptService) ListPendingManual(ctx context.Context, assessmentID uint) ([]model.AssessmentAttempt, error) {
	return s.Attempts.ListPendingManual(ctx, assessmentID)
}

// ManualGrade records essay scores on an attempt awaiting them and settles
// its final score and verdict. Every pending essay must be graded at once.
func (s *AttemptService) ManualGrade(ctx context.Context, attemptID, graderID uint, grades []EssayGrade, now time.Time) (*model.AssessmentAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.ManualGrade", attribute.Int64("attempt.id", int64(attemptID)))
	defer span.End()

	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptCompleted || !attempt.NeedsManualGrading {
		return nil, util.ErrNotAwaitingGrading
	}

	assessment, err := s.Curriculum.FindAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Curriculum.FindQuestions(ctx, assessment.ID)
	if err != nil {
		return nil, err
	}
	points := make(map[uint]int, len(questions))
	for _, q := range questions {
		points[q.ID] = q.Points
	}

	results := attempt.QuestionResults.Data()
	pending := 0
	for _, r := range results {
		if r.NeedsManual {
			pending++
		}
	}

	graded := make(model.QuestionResults, len(results))
	for qid, r := range results {
		graded[qid] = r
	}
	seen := make(map[uint]bool, len(grades))
	for _, g := range grades {
		r, ok := results[g.QuestionID]
		if !ok || !r.NeedsManual {
			return nil, util.NewValidationError("question %d is not awaiting manual grading", g.QuestionID)
		}
		if seen[g.QuestionID] {
			return nil, util.NewValidationError("question %d is graded twice", g.QuestionID)
		}
		seen[g.QuestionID] = true
		if g.Points < 0 || g.Points > points[g.QuestionID] {
			return nil, util.NewValidationError("points for question %d must be between 0 and %d", g.QuestionID, points[g.QuestionID])
		}

		awarded := g.Points
		gradedAt := now
		r.ManualPoints = &awarded
		r.GraderID = graderID
		r.GraderNote = g.Comment
		r.GradedAt = &gradedAt
		graded[g.QuestionID] = r
	}
	if len(seen) != pending {
		return nil, util.NewValidationError("all %d essay questions must be graded, got %d", pending, len(seen))
	}

	sheet, err := scoreSheet(questions, attempt.Answers.Data(), assessment.NegativeMarking, graded)
	if err != nil {
		return nil, err
	}
	attempt.Score = sheet.Score
	attempt.MaxScore = sheet.MaxScore
	attempt.Percentage = sheet.Percentage
	attempt.Passed = sheet.Percentage >= assessment.PassingScore
	attempt.QuestionResults = datatypes.NewJSONType(sheet.Results)

	if err := s.Attempts.SaveManualGrade(ctx, attempt); err != nil {
		return nil, err
	}

	monitoring.AttemptsSubmitted.WithLabelValues(string(assessment.Level), monitoring.Outcome(attempt.Passed, false)).Inc()
	logger.Log.Info("Attempt graded manually",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("graderID", graderID),
		zap.Int("percentage", attempt.Percentage),
		zap.Bool("passed", attempt.Passed))

	s.notifyGraded(ctx, attempt, assessment, now)
	return attempt, nil
}

// Result loads an attempt for its owner, or for staff when staff is true.
func (s *AttemptService) Result(ctx context.Context, attemptID, userID uint, staff bool) (*AttemptResult, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !staff && attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	assessment, err := s.Curriculum.FindAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Curriculum.FindQuestions(ctx, assessment.ID)
	if err != nil {
		return nil, err
	}
	return BuildAttemptResult(attempt, assessment, questions, staff), nil
}

// revealsKey reports whether the viewer may see the answer key and the
// per-question outcomes, which would give the key away for two-way questions.
func revealsKey(attempt *model.AssessmentAttempt, assessment *model.Assessment, staff bool) bool {
	return staff || (assessment.ShowCorrectAnswers && attempt.Status == model.AttemptCompleted)
}

// learnerView returns attempt with its per-question outcomes removed when the
// viewer may not see them. Totals stay.
func learnerView(attempt *model.AssessmentAttempt, assessment *model.Assessment, staff bool) *model.AssessmentAttempt {
	if revealsKey(attempt, assessment, staff) {
		return attempt
	}
	view := *attempt
	view.QuestionResults = datatypes.JSONType[model.QuestionResults]{}
	return &view
}

// BuildAttemptResult assembles the per-question review. Correct answers and
// per-question outcomes are included only after the attempt completed and
// only if the assessment shows them, or always for staff.
func BuildAttemptResult(attempt *model.AssessmentAttempt, assessment *model.Assessment, questions []model.AssessmentQuestion, staff bool) *AttemptResult {
	reveal := revealsKey(attempt, assessment, staff)
	answers := attempt.Answers.Data()
	results := attempt.QuestionResults.Data()

	reviews := make([]QuestionReview, 0, len(questions))
	for _, q := range questions {
		key := q.Key.Data()
		review := QuestionReview{
			QuestionID: q.ID,
			Type:       q.Type,
			Prompt:     q.Prompt,
			Points:     q.Points,
			Options:    key.Options,
		}
		if ans, ok := answers[q.ID]; ok {
			ans := ans
			review.Answer = &ans
		}
		if reveal && attempt.Status == model.AttemptCompleted {
			if r, ok := results[q.ID]; ok {
				r := r
				review.Result = &r
			}
		}
		if reveal {
			review.CorrectAnswer = &key
		}
		reviews = append(reviews, review)
	}
	return &AttemptResult{Attempt: learnerView(attempt, assessment, staff), Questions: reviews}
}
