package repository

import (
	"context"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/util"
	"course_progress_backend/pkg/database"
	"errors"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func uintPtr(v uint) *uint { return &v }

func TestAttemptRepository_SingleActiveAttempt(t *testing.T) {
	ctx := context.Background()
	repo := NewAttemptRepository(newTestDB(t))
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := &model.AssessmentAttempt{AssessmentID: 7, UserID: 1, EnrollmentID: 3, StartedAt: started}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}

	second := &model.AssessmentAttempt{AssessmentID: 7, UserID: 1, EnrollmentID: 3, StartedAt: started.Add(time.Minute)}
	if err := repo.Create(ctx, second); !errors.Is(err, util.ErrAttemptAlreadyInProgress) {
		t.Fatalf("second create: got %v, want ErrAttemptAlreadyInProgress", err)
	}

	other := &model.AssessmentAttempt{AssessmentID: 7, UserID: 2, EnrollmentID: 4, StartedAt: started}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("another user must not be blocked: %v", err)
	}

	completedAt := started.Add(5 * time.Minute)
	first.CompletedAt = &completedAt
	if err := repo.Complete(ctx, first); err != nil {
		t.Fatalf("complete: %v", err)
	}

	retake := &model.AssessmentAttempt{AssessmentID: 7, UserID: 1, EnrollmentID: 3, StartedAt: started.Add(10 * time.Minute)}
	if err := repo.Create(ctx, retake); err != nil {
		t.Fatalf("retake after completion: %v", err)
	}
}

func TestAttemptRepository_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	repo := NewAttemptRepository(newTestDB(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := &model.AssessmentAttempt{AssessmentID: 1, UserID: 1, EnrollmentID: 1, StartedAt: now}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	changed, err := repo.Abandon(ctx, a.ID, model.AbandonTimeout, now.Add(time.Hour), 3600)
	if err != nil || !changed {
		t.Fatalf("abandon: changed=%v err=%v", changed, err)
	}

	changed, err = repo.Abandon(ctx, a.ID, model.AbandonReset, now.Add(2*time.Hour), 0)
	if err != nil || changed {
		t.Fatalf("second abandon: changed=%v err=%v", changed, err)
	}

	if err := repo.Complete(ctx, a); !errors.Is(err, util.ErrAttemptNotActive) {
		t.Fatalf("complete abandoned: got %v, want ErrAttemptNotActive", err)
	}

	stored, err := repo.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != model.AttemptAbandoned || stored.AbandonReason != model.AbandonTimeout {
		t.Errorf("stored = %s/%s, want ABANDONED/TIMEOUT", stored.Status, stored.AbandonReason)
	}
	if stored.ActiveKey != nil {
		t.Error("active key must be cleared once the attempt leaves IN_PROGRESS")
	}
}

func TestAttemptRepository_AnswersRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAttemptRepository(newTestDB(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := &model.AssessmentAttempt{AssessmentID: 2, UserID: 5, EnrollmentID: 9, StartedAt: now}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	choice, flag, text := 2, true, "Paris"
	sheet := model.AnswerSheet{
		11: {Choice: &choice},
		12: {Bool: &flag},
		13: {Text: &text},
	}
	completedAt := now.Add(time.Minute)
	a.Answers = datatypes.NewJSONType(sheet)
	a.QuestionResults = datatypes.NewJSONType(model.QuestionResults{11: {Answered: true, Correct: true, Awarded: 2}})
	a.Score, a.MaxScore, a.Percentage, a.Passed = 2, 4, 50, false
	a.CompletedAt = &completedAt
	if err := repo.Complete(ctx, a); err != nil {
		t.Fatalf("complete: %v", err)
	}

	list, err := repo.ListByUserAndAssessment(ctx, 5, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}
	got := list[0].Answers.Data()
	if *got[11].Choice != 2 || *got[12].Bool != true || *got[13].Text != "Paris" {
		t.Errorf("answers did not round-trip: %+v", got)
	}
	if list[0].Percentage != 50 || list[0].Status != model.AttemptCompleted {
		t.Errorf("stored attempt = %+v", list[0])
	}
}

func TestAttemptRepository_ManualGradeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewAttemptRepository(newTestDB(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	a := &model.AssessmentAttempt{AssessmentID: 3, UserID: 1, EnrollmentID: 1, StartedAt: now}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	a.NeedsManualGrading = true
	a.CompletedAt = &now
	if err := repo.Complete(ctx, a); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pending, err := repo.ListPendingManual(ctx, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %d, err = %v", len(pending), err)
	}

	a.Score, a.MaxScore, a.Percentage, a.Passed = 8, 10, 80, true
	if err := repo.SaveManualGrade(ctx, a); err != nil {
		t.Fatalf("grade: %v", err)
	}
	if err := repo.SaveManualGrade(ctx, a); !errors.Is(err, util.ErrNotAwaitingGrading) {
		t.Fatalf("second grade: got %v, want ErrNotAwaitingGrading", err)
	}

	pending, err = repo.ListPendingManual(ctx, 3)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after grading = %d, err = %v", len(pending), err)
	}
}

func TestLessonProgressRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLessonProgressRepository(newTestDB(t))
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	p, err := repo.Ensure(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	again, err := repo.Ensure(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ID != p.ID {
		t.Fatalf("ensure created a second row: %d vs %d", again.ID, p.ID)
	}

	if changed, err := repo.UpdatePosition(ctx, p.ID, 120, t0.Add(2*time.Minute)); err != nil || !changed {
		t.Fatalf("newer position: changed=%v err=%v", changed, err)
	}
	if changed, err := repo.UpdatePosition(ctx, p.ID, 30, t0.Add(time.Minute)); err != nil || changed {
		t.Fatalf("stale position must be ignored: changed=%v err=%v", changed, err)
	}

	if err := repo.RaiseWatchDuration(ctx, p.ID, 300); err != nil {
		t.Fatal(err)
	}
	if err := repo.RaiseWatchDuration(ctx, p.ID, 100); err != nil {
		t.Fatal(err)
	}

	if err := repo.MarkCompleted(ctx, p.ID, t0); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkCompleted(ctx, p.ID, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Find(ctx, 1, 10)
	if err != nil || got == nil {
		t.Fatalf("find: %v", err)
	}
	if got.LastPositionSeconds != 120 {
		t.Errorf("position = %d, want 120", got.LastPositionSeconds)
	}
	if got.WatchDurationSeconds != 300 {
		t.Errorf("watch duration = %d, want 300", got.WatchDurationSeconds)
	}
	if !got.Completed || got.CompletedAt == nil || !got.CompletedAt.Equal(t0) {
		t.Errorf("completion = %v at %v, want true at %v", got.Completed, got.CompletedAt, t0)
	}

	missing, err := repo.Find(ctx, 1, 99)
	if err != nil || missing != nil {
		t.Errorf("missing row: got %+v, %v", missing, err)
	}
}

func TestCurriculumRepository_LoadCurriculum(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCurriculumRepository(db, nil, time.Minute)

	course := model.Course{Title: "Go", RequireAllModulesComplete: true}
	if err := db.Create(&course).Error; err != nil {
		t.Fatal(err)
	}
	m2 := model.CurriculumModule{CourseID: course.ID, Title: "second", SortOrder: 2}
	m1 := model.CurriculumModule{CourseID: course.ID, Title: "first", SortOrder: 1}
	db.Create(&m2)
	db.Create(&m1)
	db.Create(&model.Lesson{ModuleID: m1.ID, Title: "b", ContentKind: model.ContentArticle, SortOrder: 2})
	db.Create(&model.Lesson{ModuleID: m1.ID, Title: "a", ContentKind: model.ContentVideo, SortOrder: 1})

	quiz := model.Assessment{CourseID: course.ID, Title: "final", Level: model.LevelCourseFinal, PassingScore: 70, IsRequired: true}
	db.Create(&quiz)
	qt, key := model.NewQuestionKey(model.TrueFalse{Correct: true})
	db.Create(&model.AssessmentQuestion{AssessmentID: quiz.ID, Type: qt, Key: key, Points: 1, SortOrder: 2})
	qt, key = model.NewQuestionKey(model.MultipleChoice{Options: []string{"x", "y"}, CorrectIndex: 1})
	db.Create(&model.AssessmentQuestion{AssessmentID: quiz.ID, Type: qt, Key: key, Points: 1, SortOrder: 1})

	cur, err := repo.GetCurriculum(ctx, course.ID)
	if err != nil {
		t.Fatalf("get curriculum: %v", err)
	}
	if len(cur.Modules) != 2 || cur.Modules[0].Title != "first" {
		t.Fatalf("modules not in sort order: %+v", cur.Modules)
	}
	if len(cur.Modules[0].Lessons) != 2 || cur.Modules[0].Lessons[0].Title != "a" {
		t.Fatalf("lessons not in sort order: %+v", cur.Modules[0].Lessons)
	}
	qs := cur.Questions[quiz.ID]
	if len(qs) != 2 || qs[0].Type != model.QuestionMultipleChoice {
		t.Fatalf("questions not in sort order: %+v", qs)
	}
	v, err := qs[0].Variant()
	if err != nil {
		t.Fatal(err)
	}
	if mc, ok := v.(model.MultipleChoice); !ok || mc.CorrectIndex != 1 {
		t.Errorf("variant = %#v", v)
	}
	if f := cur.FinalAssessment(); f == nil || f.ID != quiz.ID {
		t.Errorf("final assessment = %+v", f)
	}

	if _, err := repo.GetCurriculum(ctx, 999); !errors.Is(err, util.ErrCourseNotFound) {
		t.Errorf("unknown course: got %v, want ErrCourseNotFound", err)
	}
}

func TestCurriculumRepository_FindLesson(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewCurriculumRepository(db, nil, 0)

	course := model.Course{Title: "Go"}
	db.Create(&course)
	m := model.CurriculumModule{CourseID: course.ID, Title: "m"}
	db.Create(&m)
	l := model.Lesson{ModuleID: m.ID, Title: "intro", ContentKind: model.ContentVideo, AssessmentID: uintPtr(4)}
	db.Create(&l)

	got, courseID, err := repo.FindLesson(ctx, l.ID)
	if err != nil {
		t.Fatalf("find lesson: %v", err)
	}
	if courseID != course.ID || got.AssessmentID == nil || *got.AssessmentID != 4 {
		t.Errorf("got lesson %+v in course %d", got, courseID)
	}

	if err := repo.UpdateVideoDuration(ctx, l.ID, 600); err != nil {
		t.Fatal(err)
	}
	got, _, _ = repo.FindLesson(ctx, l.ID)
	if got.VideoDurationSeconds != 600 {
		t.Errorf("duration = %d, want 600", got.VideoDurationSeconds)
	}

	if _, _, err := repo.FindLesson(ctx, 404); !errors.Is(err, util.ErrLessonNotFound) {
		t.Errorf("unknown lesson: got %v", err)
	}
}

func TestEnrollmentRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewEnrollmentRepository(db)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	e := &model.Enrollment{UserID: 1, CourseID: 2, Status: model.EnrollmentActive}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	changed, err := repo.MarkCompleted(ctx, e.ID, now)
	if err != nil || !changed {
		t.Fatalf("first completion: changed=%v err=%v", changed, err)
	}
	changed, err = repo.MarkCompleted(ctx, e.ID, now.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("second completion must be a no-op: changed=%v err=%v", changed, err)
	}

	attempts := NewAttemptRepository(db)
	a := &model.AssessmentAttempt{AssessmentID: 1, UserID: 1, EnrollmentID: e.ID, StartedAt: now}
	if err := attempts.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLessonProgressRepository(db).Ensure(ctx, e.ID, 1); err != nil {
		t.Fatal(err)
	}

	if err := repo.Delete(ctx, e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(ctx, e.ID); !errors.Is(err, util.ErrEnrollmentNotFound) {
		t.Errorf("enrollment still present: %v", err)
	}
	if left, _ := attempts.ListByEnrollment(ctx, e.ID); len(left) != 0 {
		t.Errorf("attempts not cascaded: %d left", len(left))
	}

	// the same learner can enroll again and open a fresh attempt
	again := &model.Enrollment{UserID: 1, CourseID: 2, Status: model.EnrollmentActive}
	if err := repo.Create(ctx, again); err != nil {
		t.Fatalf("re-enroll after delete: %v", err)
	}
	if err := attempts.Create(ctx, &model.AssessmentAttempt{AssessmentID: 1, UserID: 1, EnrollmentID: again.ID, StartedAt: now}); err != nil {
		t.Fatalf("attempt after delete: %v", err)
	}
	var purged int64
	db.Unscoped().Model(&model.AssessmentAttempt{}).Where("enrollment_id = ?", e.ID).Count(&purged)
	if purged != 0 {
		t.Errorf("%d attempt rows kept after delete", purged)
	}
}

func TestCertificateRepository_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewCertificateRepository(newTestDB(t))
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := repo.Create(ctx, &model.Certificate{EnrollmentID: 5, UserID: 1, CourseID: 2, CertificateNumber: "A-1", IssuedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	second, err := repo.Create(ctx, &model.Certificate{EnrollmentID: 5, UserID: 1, CourseID: 2, CertificateNumber: "A-2", IssuedAt: now})
	if err != nil {
		t.Fatalf("duplicate issue: %v", err)
	}
	if second.ID != first.ID || second.CertificateNumber != "A-1" {
		t.Errorf("got %+v, want the first certificate", second)
	}
}
