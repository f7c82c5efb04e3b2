package service

import (
	"context"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/repository"
	"course_progress_backend/internal/util"
	"course_progress_backend/pkg/logger"
	"course_progress_backend/pkg/tracing"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CompletionHook runs after an enrollment's course becomes complete.
type CompletionHook interface {
	OnCourseCompleted(ctx context.Context, enrollment *model.Enrollment, snapshot *model.ProgressSnapshot, now time.Time) error
}

type ProgressService struct {
	Curriculum     *repository.CurriculumRepository
	Enrollments    *repository.EnrollmentRepository
	LessonProgress *repository.LessonProgressRepository
	Attempts       *repository.AttemptRepository
	Completion     CompletionHook
	Probe          util.ProbeFunc

	policy atomic.Pointer[config.ProgressConfig]
}

func NewProgressService(
	curriculum *repository.CurriculumRepository,
	enrollments *repository.EnrollmentRepository,
	lessonProgress *repository.LessonProgressRepository,
	attempts *repository.AttemptRepository,
	cfg config.ProgressConfig,
) *ProgressService {
	s := &ProgressService{
		Curriculum:     curriculum,
		Enrollments:    enrollments,
		LessonProgress: lessonProgress,
		Attempts:       attempts,
		Probe:          util.FFProbe,
	}
	s.SetPolicy(cfg)
	return s
}

func (s *ProgressService) SetPolicy(cfg config.ProgressConfig) {
	cfg = cfg.Normalized()
	s.policy.Store(&cfg)
}

func (s *ProgressService) Policy() config.ProgressConfig {
	return *s.policy.Load()
}

// AuthorizeEnrollment loads an enrollment the caller may read: their own, or any for staff.
func (s *ProgressService) AuthorizeEnrollment(ctx context.Context, enrollmentID uint, claims *util.Claims) (*model.Enrollment, error) {
	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if claims == nil || (enrollment.UserID != claims.UserID && !claims.IsStaff()) {
		return nil, util.ErrPermissionDenied
	}
	return enrollment, nil
}

// ComputeProgress reads the enrollment's records and derives its snapshot.
// It writes nothing.
func (s *ProgressService) ComputeProgress(ctx context.Context, enrollmentID uint) (*model.ProgressSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.ComputeProgress", attribute.Int64("enrollment.id", int64(enrollmentID)))
	defer span.End()

	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return s.computeFor(ctx, enrollment)
}

func (s *ProgressService) computeFor(ctx context.Context, enrollment *model.Enrollment) (*model.ProgressSnapshot, error) {
	cur, err := s.Curriculum.GetCurriculum(ctx, enrollment.CourseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.LessonProgress.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.ListByEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(enrollment.ID, cur, rows, attempts, s.Policy()), nil
}

// BuildSnapshot is the pure aggregation step. The output depends only on its
// inputs, so equal inputs give byte-identical snapshots.
//
// ProgressPercent counts every lesson as one item and every required module
// or final assessment as AssessmentItemWeight items. Lesson quizzes count
// through their lesson. OverallScore blends lesson completion percentage and
// the mean best percentage over required assessments with the configured
// weights; with no required assessments it is the lesson completion percentage.
func BuildSnapshot(enrollmentID uint, cur *model.Curriculum, rows []model.LessonProgress, attempts []model.AssessmentAttempt, policy config.ProgressConfig) *model.ProgressSnapshot {
	policy = policy.Normalized()

	progressByLesson := make(map[uint]*model.LessonProgress, len(rows))
	for i := range rows {
		progressByLesson[rows[i].LessonID] = &rows[i]
	}

	attemptsByAssessment := make(map[uint][]model.AssessmentAttempt)
	for _, a := range attempts {
		attemptsByAssessment[a.AssessmentID] = append(attemptsByAssessment[a.AssessmentID], a)
	}

	outcomes := make(map[uint]*AssessmentOutcome, len(cur.Assessments))
	outcome := func(id *uint) *AssessmentOutcome {
		if id == nil {
			return nil
		}
		if o, ok := outcomes[*id]; ok {
			return o
		}
		a, ok := cur.Assessments[*id]
		if !ok {
			return nil
		}
		o := &AssessmentOutcome{Assessment: a, Best: BestAttempt(attemptsByAssessment[*id])}
		outcomes[*id] = o
		return o
	}

	snap := &model.ProgressSnapshot{
		EnrollmentID: enrollmentID,
		CourseID:     cur.Course.ID,
		Modules:      make([]model.ModuleProgress, 0, len(cur.Modules)),
		Assessments:  make([]model.AssessmentStatus, 0, len(cur.Assessments)),
	}

	lessonComplete := make(map[uint]bool)
	moduleComplete := make(map[uint]bool, len(cur.Modules))
	var items, passedItems float64
	counted := make(map[uint]bool)

	for _, m := range cur.Modules {
		mp := model.ModuleProgress{
			ModuleID:     m.ID,
			TotalLessons: len(m.Lessons),
			Lessons:      make([]model.LessonStatus, 0, len(m.Lessons)),
		}
		for _, l := range m.Lessons {
			done := IsLessonComplete(l, progressByLesson[l.ID], outcome(l.AssessmentID))
			lessonComplete[l.ID] = done
			if done {
				mp.CompletedLessons++
			}
			mp.Lessons = append(mp.Lessons, model.LessonStatus{LessonID: l.ID, ContentKind: l.ContentKind, Completed: done})
		}

		moduleAssessment := outcome(m.AssessmentID)
		mp.Completed = IsModuleComplete(m, lessonComplete, moduleAssessment)
		moduleComplete[m.ID] = mp.Completed

		if moduleAssessment.Required() && !counted[moduleAssessment.Assessment.ID] {
			counted[moduleAssessment.Assessment.ID] = true
			items += policy.AssessmentItemWeight
			if moduleAssessment.Passed() {
				passedItems += policy.AssessmentItemWeight
			}
		}

		snap.TotalLessons += mp.TotalLessons
		snap.CompletedLessons += mp.CompletedLessons
		snap.Modules = append(snap.Modules, mp)
	}

	var final *AssessmentOutcome
	if f := cur.FinalAssessment(); f != nil {
		id := f.ID
		final = outcome(&id)
		snap.FinalAssessment = finalStatus(final, attemptsByAssessment[id])
		if final.Required() && !counted[id] {
			counted[id] = true
			items += policy.AssessmentItemWeight
			if final.Passed() {
				passedItems += policy.AssessmentItemWeight
			}
		}
	}

	snap.AllAssessmentsPassed = true
	var bestSum float64
	for _, id := range cur.AssessmentIDs() {
		id := id
		o := outcome(&id)
		st := model.AssessmentStatus{
			AssessmentID: id,
			Level:        o.Assessment.Level,
			Required:     o.Required(),
			Attempted:    hasCompleted(attemptsByAssessment[id]),
			Passed:       o.Passed(),
		}
		if o.Best != nil {
			st.BestPercentage = o.Best.Percentage
		}
		snap.Assessments = append(snap.Assessments, st)

		if !st.Required {
			continue
		}
		snap.TotalAssessments++
		bestSum += float64(st.BestPercentage)
		if st.Passed {
			snap.CompletedAssessments++
		} else {
			snap.AllAssessmentsPassed = false
		}
	}

	snap.AllModulesComplete = true
	for _, done := range moduleComplete {
		if !done {
			snap.AllModulesComplete = false
			break
		}
	}

	total := float64(snap.TotalLessons) + items
	if total == 0 {
		snap.ProgressPercent = 100
	} else {
		snap.ProgressPercent = round2((float64(snap.CompletedLessons) + passedItems) / total * 100)
	}

	lessonPct := 100.0
	if snap.TotalLessons > 0 {
		lessonPct = float64(snap.CompletedLessons) / float64(snap.TotalLessons) * 100
	}
	if snap.TotalAssessments == 0 {
		snap.OverallScore = round2(lessonPct)
	} else {
		mean := bestSum / float64(snap.TotalAssessments)
		weights := policy.LessonScoreWeight + policy.AssessmentScoreWeight
		snap.OverallScore = round2((policy.LessonScoreWeight*lessonPct + policy.AssessmentScoreWeight*mean) / weights)
	}

	snap.CourseComplete = IsCourseComplete(cur.Course.CompletionPolicy(), moduleComplete, snap.AllAssessmentsPassed, final)
	return snap
}

func finalStatus(final *AssessmentOutcome, attempts []model.AssessmentAttempt) model.FinalAssessmentStatus {
	st := model.FinalAssessmentStatus{
		Exists:    true,
		Required:  final.Required(),
		Attempted: hasCompleted(attempts),
		Passed:    final.Passed(),
	}
	if final.Best != nil {
		st.BestPercentage = final.Best.Percentage
	}
	for _, a := range attempts {
		if a.Status == model.AttemptCompleted && a.NeedsManualGrading {
			st.PendingManual = true
			break
		}
	}
	return st
}

func hasCompleted(attempts []model.AssessmentAttempt) bool {
	for _, a := range attempts {
		if a.Status == model.AttemptCompleted {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MarkLessonProgress records one interaction with a lesson. Position is last
// write wins by event time, watch duration keeps the maximum and completion
// never reverts. VIDEO lessons complete once the watched share reaches the
// configured threshold.
func (s *ProgressService) MarkLessonProgress(ctx context.Context, enrollmentID, userID, lessonID uint, update model.LessonProgressUpdate, now time.Time) (*model.LessonProgress, error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.MarkLessonProgress",
		attribute.Int64("enrollment.id", int64(enrollmentID)),
		attribute.Int64("lesson.id", int64(lessonID)))
	defer span.End()

	if update.PositionSeconds != nil && *update.PositionSeconds < 0 {
		return nil, util.NewValidationError("position must not be negative")
	}
	if update.WatchDurationSeconds != nil && *update.WatchDurationSeconds < 0 {
		return nil, util.NewValidationError("watch duration must not be negative")
	}

	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	lesson, courseID, err := s.Curriculum.FindLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if courseID != enrollment.CourseID {
		return nil, util.ErrLessonNotFound.WithMessage("lesson %d is not part of course %d", lessonID, enrollment.CourseID)
	}

	// client clocks are not trusted past the server's
	at := now
	if update.OccurredAt != nil && update.OccurredAt.Before(now) {
		at = *update.OccurredAt
	}

	row, err := s.LessonProgress.Ensure(ctx, enrollmentID, lessonID)
	if err != nil {
		return nil, err
	}
	wasComplete := row.Completed

	if update.PositionSeconds != nil {
		if _, err := s.LessonProgress.UpdatePosition(ctx, row.ID, *update.PositionSeconds, at); err != nil {
			return nil, err
		}
	}

	watched := row.WatchDurationSeconds
	if update.WatchDurationSeconds != nil {
		if err := s.LessonProgress.RaiseWatchDuration(ctx, row.ID, *update.WatchDurationSeconds); err != nil {
			return nil, err
		}
		if *update.WatchDurationSeconds > watched {
			watched = *update.WatchDurationSeconds
		}
	}

	complete := update.Completed != nil && *update.Completed
	if !complete && lesson.ContentKind == model.ContentVideo && update.WatchDurationSeconds != nil {
		complete = s.watchedEnough(ctx, lesson, courseID, watched)
	}
	if complete && !wasComplete {
		if err := s.LessonProgress.MarkCompleted(ctx, row.ID, now); err != nil {
			return nil, err
		}
	}

	row, err = s.LessonProgress.Find(ctx, enrollmentID, lessonID)
	if err != nil {
		return nil, err
	}

	if row.Completed && !wasComplete {
		logger.Log.Debug("Lesson completed", zap.Uint("enrollmentID", enrollmentID), zap.Uint("lessonID", lessonID))
		if err := s.syncCompletion(ctx, enrollment, now); err != nil {
			logger.Log.Warn("Course completion check failed", zap.Uint("enrollmentID", enrollmentID), zap.Error(err))
		}
	}
	return row, nil
}

// watchedEnough compares watch time against the threshold share of the video.
// An unknown duration is probed once and stored when probing is enabled.
func (s *ProgressService) watchedEnough(ctx context.Context, lesson *model.Lesson, courseID uint, watched int) bool {
	duration := lesson.VideoDurationSeconds
	if duration <= 0 {
		duration = s.probeDuration(ctx, lesson, courseID)
	}
	if duration <= 0 {
		return false
	}
	return float64(watched) >= s.Policy().VideoCompletionThreshold*float64(duration)
}

func (s *ProgressService) probeDuration(ctx context.Context, lesson *model.Lesson, courseID uint) int {
	if !s.Policy().ProbeVideoDurations || s.Probe == nil || lesson.VideoURL == "" {
		return 0
	}
	seconds, err := util.VideoDurationSeconds(s.Probe, lesson.VideoURL)
	if err != nil {
		logger.Log.Warn("Video duration probe failed", zap.Uint("lessonID", lesson.ID), zap.Error(err))
		return 0
	}
	if err := s.Curriculum.UpdateVideoDuration(ctx, lesson.ID, seconds); err != nil {
		logger.Log.Warn("Failed to store probed video duration", zap.Uint("lessonID", lesson.ID), zap.Error(err))
		return seconds
	}
	lesson.VideoDurationSeconds = seconds
	if err := s.Curriculum.Invalidate(ctx, courseID); err != nil {
		logger.Log.Warn("Curriculum cache invalidation failed", zap.Uint("courseID", courseID), zap.Error(err))
	}
	return seconds
}

// AfterAttemptGraded marks lessons backed by a passed assessment as done and
// re-evaluates course completion.
func (s *ProgressService) AfterAttemptGraded(ctx context.Context, attempt *model.AssessmentAttempt, assessment *model.Assessment, now time.Time) error {
	enrollment, err := s.Enrollments.FindByID(ctx, attempt.EnrollmentID)
	if err != nil {
		return err
	}

	if attempt.Passed {
		cur, err := s.Curriculum.GetCurriculum(ctx, enrollment.CourseID)
		if err != nil {
			return err
		}
		for _, lessonID := range lessonsBackedBy(cur, assessment) {
			row, err := s.LessonProgress.Ensure(ctx, enrollment.ID, lessonID)
			if err != nil {
				return err
			}
			if err := s.LessonProgress.MarkCompleted(ctx, row.ID, now); err != nil {
				return err
			}
		}
	}
	return s.syncCompletion(ctx, enrollment, now)
}

// lessonsBackedBy lists lessons that embed the assessment or that the assessment points at.
func lessonsBackedBy(cur *model.Curriculum, assessment *model.Assessment) []uint {
	var ids []uint
	seen := make(map[uint]bool)
	for _, m := range cur.Modules {
		for _, l := range m.Lessons {
			linked := l.AssessmentID != nil && *l.AssessmentID == assessment.ID
			pointed := assessment.LessonID != nil && *assessment.LessonID == l.ID
			if (linked || pointed) && !seen[l.ID] {
				seen[l.ID] = true
				ids = append(ids, l.ID)
			}
		}
	}
	return ids
}

// syncCompletion flips the enrollment to COMPLETED once the course is complete
// and hands the snapshot to the completion hook.
func (s *ProgressService) syncCompletion(ctx context.Context, enrollment *model.Enrollment, now time.Time) error {
	snap, err := s.computeFor(ctx, enrollment)
	if err != nil {
		return err
	}
	if !snap.CourseComplete {
		return nil
	}

	changed, err := s.Enrollments.MarkCompleted(ctx, enrollment.ID, now)
	if err != nil {
		return err
	}
	if changed {
		enrollment.Status = model.EnrollmentCompleted
		enrollment.CompletedAt = &now
		logger.Log.Info("Course completed", zap.Uint("enrollmentID", enrollment.ID), zap.Uint("courseID", enrollment.CourseID))
	}
	if s.Completion != nil {
		return s.Completion.OnCourseCompleted(ctx, enrollment, snap, now)
	}
	return nil
}
