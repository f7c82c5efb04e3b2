package controller

import (
	"bytes"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/middleware"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/repository"
	"course_progress_backend/internal/service"
	"course_progress_backend/internal/util"
	"course_progress_backend/pkg/database"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const testSecret = "controller-test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   *util.AppError  `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB

	course     model.Course
	lesson     model.Lesson
	final      model.Assessment
	question   model.AssessmentQuestion
	enrollment model.Enrollment
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	curriculum := repository.NewCurriculumRepository(db, nil, 0)
	enrollments := repository.NewEnrollmentRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)

	storage := service.NewStorageProvider(&config.StorageConfig{Type: util.StorageLocal, LocalPath: t.TempDir()})
	attempts := service.NewAttemptService(attemptRepo, curriculum, enrollments, config.AttemptsConfig{CountExpiredAttempts: true})
	progress := service.NewProgressService(curriculum, enrollments, repository.NewLessonProgressRepository(db), attemptRepo, config.ProgressConfig{})
	progress.Probe = nil
	certificates := service.NewCertificateService(progress, curriculum, enrollments, repository.NewCertificateRepository(db), storage, config.CertificateConfig{})
	attempts.Listener = progress
	progress.Completion = certificates

	attemptController := NewAttemptController(attempts)
	progressController := NewProgressController(progress)
	certificateController := NewCertificateController(certificates, progress)

	router := gin.New()
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(testSecret))
	api.POST("/assessments/:id/attempts", attemptController.Start)
	api.GET("/assessments/:id/attempts", attemptController.List)
	api.GET("/attempts/:attemptId", attemptController.Result)
	api.POST("/attempts/:attemptId/submit", attemptController.Submit)
	api.PUT("/enrollments/:id/lessons/:lessonId/progress", progressController.MarkLesson)
	api.GET("/enrollments/:id/progress", progressController.GetProgress)
	api.GET("/enrollments/:id/certificate/eligibility", certificateController.GetEligibility)
	api.POST("/enrollments/:id/certificate", certificateController.Issue)
	teacher := api.Group("/teacher", middleware.RoleMiddleware(model.Teacher))
	teacher.GET("/attempts/pending", attemptController.ListPending)

	s := &testServer{router: router, db: db}
	s.seed(t)
	return s
}

// seed builds a one-lesson course with a single-question final and enrolls user 7.
func (s *testServer) seed(t *testing.T) {
	t.Helper()
	create := func(v interface{}) {
		if err := s.db.Create(v).Error; err != nil {
			t.Fatalf("create %T: %v", v, err)
		}
	}

	s.course = model.Course{
		Title:                       "HTTP in Go",
		RequireAllModulesComplete:   true,
		RequireAllAssessmentsPassed: true,
		Certificate: model.CertificatePolicy{
			RequireAllModulesComplete:   true,
			RequireAllAssessmentsPassed: true,
		},
	}
	create(&s.course)

	module := model.CurriculumModule{CourseID: s.course.ID, Title: "basics", SortOrder: 1}
	create(&module)
	s.lesson = model.Lesson{ModuleID: module.ID, Title: "handlers", SortOrder: 1, ContentKind: model.ContentArticle}
	create(&s.lesson)

	s.final = model.Assessment{
		CourseID:     s.course.ID,
		Title:        "final",
		Level:        model.LevelCourseFinal,
		PassingScore: 50,
		IsRequired:   true,
		AllowRetake:  true,
	}
	create(&s.final)

	qt, key := model.NewQuestionKey(model.TrueFalse{Correct: true})
	s.question = model.AssessmentQuestion{AssessmentID: s.final.ID, Type: qt, Prompt: "net/http is in the standard library", Key: key, Points: 10, SortOrder: 1}
	create(&s.question)

	s.enrollment = model.Enrollment{UserID: 7, CourseID: s.course.ID, Status: model.EnrollmentActive}
	create(&s.enrollment)
}

func token(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	tok, err := util.GenerateJWT(userID, role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, resp
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d/progress", s.enrollment.ID), "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", code)
	}

	code, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/enrollments/%d/progress", s.enrollment.ID), "not-a-jwt", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad token: got %d, want 401", code)
	}
}

func TestAttemptFlow(t *testing.T) {
	s := newTestServer(t)
	student := token(t, 7, model.Student)
	startPath := fmt.Sprintf("/api/assessments/%d/attempts", s.final.ID)

	code, resp := s.do(t, http.MethodPost, startPath, student, gin.H{"enrollmentId": s.enrollment.ID})
	if code != http.StatusCreated {
		t.Fatalf("start: got %d (%s)", code, resp.Message)
	}
	var attempt model.AssessmentAttempt
	if err := json.Unmarshal(resp.Data, &attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	if attempt.Status != model.AttemptInProgress {
		t.Fatalf("status = %s", attempt.Status)
	}

	code, resp = s.do(t, http.MethodPost, startPath, student, gin.H{"enrollmentId": s.enrollment.ID})
	if code != http.StatusConflict {
		t.Fatalf("second start: got %d, want 409", code)
	}
	if resp.Error == nil || resp.Error.Code != util.ErrAttemptAlreadyInProgress.Code {
		t.Fatalf("second start error = %+v", resp.Error)
	}

	code, _ = s.do(t, http.MethodPost, startPath, student, gin.H{})
	if code != http.StatusBadRequest {
		t.Fatalf("missing enrollment: got %d, want 400", code)
	}

	submitPath := fmt.Sprintf("/api/attempts/%d/submit", attempt.ID)
	answers := gin.H{"answers": gin.H{fmt.Sprint(s.question.ID): gin.H{"bool": true}}}
	code, resp = s.do(t, http.MethodPost, submitPath, student, answers)
	if code != http.StatusOK {
		t.Fatalf("submit: got %d (%s)", code, resp.Message)
	}
	if err := json.Unmarshal(resp.Data, &attempt); err != nil {
		t.Fatalf("decode submitted attempt: %v", err)
	}
	if attempt.Status != model.AttemptCompleted || attempt.Percentage != 100 || !attempt.Passed {
		t.Fatalf("submitted attempt = %s %v%% passed=%v", attempt.Status, attempt.Percentage, attempt.Passed)
	}

	code, resp = s.do(t, http.MethodPost, submitPath, student, answers)
	if code != http.StatusConflict || resp.Error == nil || resp.Error.Code != util.ErrAttemptNotActive.Code {
		t.Fatalf("resubmit: got %d %+v", code, resp.Error)
	}

	// another learner may not read the result
	code, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/attempts/%d", attempt.ID), token(t, 8, model.Student), nil)
	if code != http.StatusForbidden {
		t.Fatalf("foreign result: got %d, want 403", code)
	}
}

func TestProgressPermissions(t *testing.T) {
	s := newTestServer(t)
	path := fmt.Sprintf("/api/enrollments/%d/progress", s.enrollment.ID)

	code, resp := s.do(t, http.MethodGet, path, token(t, 7, model.Student), nil)
	if code != http.StatusOK {
		t.Fatalf("owner: got %d (%s)", code, resp.Message)
	}
	var snap model.ProgressSnapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.TotalLessons != 1 || snap.CompletedLessons != 0 {
		t.Fatalf("snapshot lessons = %d/%d", snap.CompletedLessons, snap.TotalLessons)
	}

	code, resp = s.do(t, http.MethodGet, path, token(t, 8, model.Student), nil)
	if code != http.StatusForbidden || resp.Error == nil || resp.Error.Code != util.ErrPermissionDenied.Code {
		t.Fatalf("other student: got %d %+v", code, resp.Error)
	}

	code, _ = s.do(t, http.MethodGet, path, token(t, 99, model.Teacher), nil)
	if code != http.StatusOK {
		t.Fatalf("teacher: got %d, want 200", code)
	}

	code, _ = s.do(t, http.MethodGet, "/api/enrollments/9999/progress", token(t, 7, model.Student), nil)
	if code != http.StatusNotFound {
		t.Fatalf("missing enrollment: got %d, want 404", code)
	}
}

func TestTeacherRoutesRequireRole(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/api/teacher/attempts/pending", token(t, 7, model.Student), nil)
	if code != http.StatusForbidden {
		t.Fatalf("student: got %d, want 403", code)
	}
	for _, role := range []model.UserRole{model.Teacher, model.Admin} {
		code, _ = s.do(t, http.MethodGet, "/api/teacher/attempts/pending", token(t, 99, role), nil)
		if code != http.StatusOK {
			t.Fatalf("%s: got %d, want 200", role, code)
		}
	}
}

func TestCertificateFlow(t *testing.T) {
	s := newTestServer(t)
	student := token(t, 7, model.Student)
	eligibilityPath := fmt.Sprintf("/api/enrollments/%d/certificate/eligibility", s.enrollment.ID)
	issuePath := fmt.Sprintf("/api/enrollments/%d/certificate", s.enrollment.ID)

	code, resp := s.do(t, http.MethodGet, eligibilityPath, student, nil)
	if code != http.StatusOK {
		t.Fatalf("eligibility: got %d (%s)", code, resp.Message)
	}
	var view service.EligibilityView
	if err := json.Unmarshal(resp.Data, &view); err != nil {
		t.Fatalf("decode eligibility: %v", err)
	}
	if view.Eligible || len(view.Reasons) == 0 {
		t.Fatalf("fresh enrollment eligible=%v reasons=%v", view.Eligible, view.Reasons)
	}

	code, resp = s.do(t, http.MethodPost, issuePath, student, nil)
	if code != http.StatusConflict || resp.Error == nil || resp.Error.Code != util.ErrNotEligible.Code {
		t.Fatalf("early issue: got %d %+v", code, resp.Error)
	}
	var verdict model.Eligibility
	if err := json.Unmarshal(resp.Data, &verdict); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if verdict.Eligible || len(verdict.Reasons) == 0 {
		t.Fatalf("verdict = %+v", verdict)
	}

	code, resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/enrollments/%d/lessons/%d/progress", s.enrollment.ID, s.lesson.ID), student, gin.H{"completed": true})
	if code != http.StatusOK {
		t.Fatalf("mark lesson: got %d (%s)", code, resp.Message)
	}

	code, resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/assessments/%d/attempts", s.final.ID), student, gin.H{"enrollmentId": s.enrollment.ID})
	if code != http.StatusCreated {
		t.Fatalf("start: got %d (%s)", code, resp.Message)
	}
	var attempt model.AssessmentAttempt
	if err := json.Unmarshal(resp.Data, &attempt); err != nil {
		t.Fatalf("decode attempt: %v", err)
	}
	answers := gin.H{"answers": gin.H{fmt.Sprint(s.question.ID): gin.H{"bool": true}}}
	if code, resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/attempts/%d/submit", attempt.ID), student, answers); code != http.StatusOK {
		t.Fatalf("submit: got %d (%s)", code, resp.Message)
	}

	code, resp = s.do(t, http.MethodPost, issuePath, student, nil)
	if code != http.StatusCreated {
		t.Fatalf("issue: got %d (%s)", code, resp.Message)
	}
	var cert model.Certificate
	if err := json.Unmarshal(resp.Data, &cert); err != nil {
		t.Fatalf("decode certificate: %v", err)
	}
	if cert.CertificateNumber == "" || cert.EnrollmentID != s.enrollment.ID {
		t.Fatalf("certificate = %+v", cert)
	}

	code, resp = s.do(t, http.MethodPost, issuePath, student, nil)
	if code != http.StatusCreated {
		t.Fatalf("reissue: got %d (%s)", code, resp.Message)
	}
	var again model.Certificate
	if err := json.Unmarshal(resp.Data, &again); err != nil {
		t.Fatalf("decode reissued certificate: %v", err)
	}
	if again.CertificateNumber != cert.CertificateNumber {
		t.Fatalf("reissue changed number: %s -> %s", cert.CertificateNumber, again.CertificateNumber)
	}
}
