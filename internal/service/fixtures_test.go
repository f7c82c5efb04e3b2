package service

import (
	"bytes"
	"context"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/repository"
	"course_progress_backend/pkg/database"
	"io"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

// memoryStorage keeps uploaded objects in memory.
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	return m.GetURL(key), nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) GetURL(key string) string {
	return "mem://" + key
}

func (m *memoryStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type fixture struct {
	ctx     context.Context
	db      *gorm.DB
	now     time.Time
	storage *memoryStorage

	curriculumRepo *repository.CurriculumRepository
	enrollmentRepo *repository.EnrollmentRepository
	attemptRepo    *repository.AttemptRepository
	progressRepo   *repository.LessonProgressRepository
	certRepo       *repository.CertificateRepository

	attempts     *AttemptService
	progress     *ProgressService
	certificates *CertificateService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	f := &fixture{
		ctx:            context.Background(),
		db:             db,
		now:            time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		storage:        newMemoryStorage(),
		curriculumRepo: repository.NewCurriculumRepository(db, nil, 0),
		enrollmentRepo: repository.NewEnrollmentRepository(db),
		attemptRepo:    repository.NewAttemptRepository(db),
		progressRepo:   repository.NewLessonProgressRepository(db),
		certRepo:       repository.NewCertificateRepository(db),
	}

	f.attempts = NewAttemptService(f.attemptRepo, f.curriculumRepo, f.enrollmentRepo, config.AttemptsConfig{CountExpiredAttempts: true})
	f.progress = NewProgressService(f.curriculumRepo, f.enrollmentRepo, f.progressRepo, f.attemptRepo, config.ProgressConfig{})
	f.progress.Probe = nil
	f.certificates = NewCertificateService(f.progress, f.curriculumRepo, f.enrollmentRepo, f.certRepo, f.storage, config.CertificateConfig{})

	f.attempts.Listener = f.progress
	f.progress.Completion = f.certificates
	return f
}

func (f *fixture) create(t *testing.T, v interface{}) {
	t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func (f *fixture) course(t *testing.T, edit func(*model.Course)) model.Course {
	t.Helper()
	c := model.Course{
		Title:                       "Concurrency in Go",
		RequireAllModulesComplete:   true,
		RequireAllAssessmentsPassed: true,
		Certificate: model.CertificatePolicy{
			RequireAllModulesComplete:   true,
			RequireAllAssessmentsPassed: true,
		},
	}
	if edit != nil {
		edit(&c)
	}
	f.create(t, &c)
	return c
}

func (f *fixture) module(t *testing.T, courseID uint, sort int, assessmentID *uint) model.CurriculumModule {
	t.Helper()
	m := model.CurriculumModule{CourseID: courseID, Title: "module", SortOrder: sort, AssessmentID: assessmentID}
	f.create(t, &m)
	return m
}

func (f *fixture) lesson(t *testing.T, moduleID uint, sort int, kind model.ContentKind, assessmentID *uint) model.Lesson {
	t.Helper()
	l := model.Lesson{ModuleID: moduleID, Title: "lesson", SortOrder: sort, ContentKind: kind, AssessmentID: assessmentID}
	if kind == model.ContentVideo {
		l.VideoDurationSeconds = 100
	}
	f.create(t, &l)
	return l
}

// assessment creates a required, retakeable assessment and lets edit adjust it.
func (f *fixture) assessment(t *testing.T, courseID uint, level model.AssessmentLevel, edit func(*model.Assessment)) model.Assessment {
	t.Helper()
	a := model.Assessment{
		CourseID:     courseID,
		Title:        "assessment",
		Level:        level,
		PassingScore: 70,
		IsRequired:   true,
		AllowRetake:  true,
	}
	if edit != nil {
		edit(&a)
	}
	f.create(t, &a)
	return a
}

func (f *fixture) question(t *testing.T, assessmentID uint, sort int, v model.QuestionVariant, points, negative int) model.AssessmentQuestion {
	t.Helper()
	qt, key := model.NewQuestionKey(v)
	q := model.AssessmentQuestion{
		AssessmentID:   assessmentID,
		Type:           qt,
		Prompt:         "prompt",
		Key:            key,
		Points:         points,
		NegativePoints: negative,
		SortOrder:      sort,
	}
	f.create(t, &q)
	return q
}

func (f *fixture) enroll(t *testing.T, userID, courseID uint) model.Enrollment {
	t.Helper()
	e := model.Enrollment{UserID: userID, CourseID: courseID, Status: model.EnrollmentActive}
	f.create(t, &e)
	return e
}

func (f *fixture) at(d time.Duration) time.Time {
	return f.now.Add(d)
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
func uintPtr(v uint) *uint    { return &v }

func choice(i int) model.SubmittedAnswer  { return model.SubmittedAnswer{Choice: intPtr(i)} }
func truth(b bool) model.SubmittedAnswer  { return model.SubmittedAnswer{Bool: boolPtr(b)} }
func text(s string) model.SubmittedAnswer { return model.SubmittedAnswer{Text: strPtr(s)} }

// twoChoice is a two-option multiple choice question with option 0 correct.
var twoChoice = model.MultipleChoice{Options: []string{"right", "wrong"}, CorrectIndex: 0}
