package service

import (
	"bytes"
	"context"
	"course_progress_backend/internal/config"
	"course_progress_backend/internal/model"
	"course_progress_backend/internal/repository"
	"course_progress_backend/internal/util"
	"course_progress_backend/pkg/logger"
	"course_progress_backend/pkg/monitoring"
	"course_progress_backend/pkg/tracing"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Eligibility reason codes.
const (
	ReasonModulesIncomplete          = "MODULES_INCOMPLETE"
	ReasonAssessmentsNotPassed       = "ASSESSMENTS_NOT_PASSED"
	ReasonFinalAssessmentMissing     = "FINAL_ASSESSMENT_MISSING"
	ReasonFinalAssessmentNotPassed   = "FINAL_ASSESSMENT_NOT_PASSED"
	ReasonFinalAssessmentScoreTooLow = "FINAL_ASSESSMENT_SCORE_TOO_LOW"
	ReasonCourseScoreTooLow          = "COURSE_SCORE_TOO_LOW"
)

// IsEligible checks the snapshot against the certificate policy and lists
// every unmet condition. The minimum score applies to the final's best
// percentage when the course has a final, otherwise to the overall score.
func IsEligible(snap *model.ProgressSnapshot, policy model.CertificatePolicy) model.Eligibility {
	reasons := make([]model.EligibilityReason, 0)
	add := func(code, format string, args ...interface{}) {
		reasons = append(reasons, model.EligibilityReason{Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if policy.RequireAllModulesComplete && !snap.AllModulesComplete {
		done := 0
		for _, m := range snap.Modules {
			if m.Completed {
				done++
			}
		}
		add(ReasonModulesIncomplete, "%d of %d modules complete", done, len(snap.Modules))
	}

	if policy.RequireAllAssessmentsPassed && !snap.AllAssessmentsPassed {
		add(ReasonAssessmentsNotPassed, "%d of %d required assessments passed", snap.CompletedAssessments, snap.TotalAssessments)
	}

	final := snap.FinalAssessment
	if policy.FinalAssessmentRequired {
		switch {
		case !final.Exists:
			add(ReasonFinalAssessmentMissing, "the course has no final assessment")
		case final.PendingManual && !final.Passed:
			add(ReasonFinalAssessmentNotPassed, "the final assessment is awaiting manual grading")
		case !final.Passed:
			add(ReasonFinalAssessmentNotPassed, "the final assessment has not been passed")
		}
	}

	if minScore := policy.MinimumCoursePassingScore; minScore > 0 {
		if final.Exists {
			if final.BestPercentage < minScore {
				add(ReasonFinalAssessmentScoreTooLow, "best final assessment score %d%% is below the required %d%%", final.BestPercentage, minScore)
			}
		} else if snap.OverallScore < float64(minScore) {
			add(ReasonCourseScoreTooLow, "overall score %.2f is below the required %d", snap.OverallScore, minScore)
		}
	}

	return model.Eligibility{Eligible: len(reasons) == 0, Reasons: reasons}
}

// EligibilityView is returned by GetEligibility.
type EligibilityView struct {
	model.Eligibility
	Snapshot    *model.ProgressSnapshot `json:"snapshot"`
	Certificate *model.Certificate      `json:"certificate,omitempty"`
}

type CertificateService struct {
	Progress     *ProgressService
	Curriculum   *repository.CurriculumRepository
	Enrollments  *repository.EnrollmentRepository
	Certificates *repository.CertificateRepository
	Storage      StorageProvider

	cfg atomic.Pointer[config.CertificateConfig]
}

func NewCertificateService(
	progress *ProgressService,
	curriculum *repository.CurriculumRepository,
	enrollments *repository.EnrollmentRepository,
	certificates *repository.CertificateRepository,
	storage StorageProvider,
	cfg config.CertificateConfig,
) *CertificateService {
	s := &CertificateService{
		Progress:     progress,
		Curriculum:   curriculum,
		Enrollments:  enrollments,
		Certificates: certificates,
		Storage:      storage,
	}
	s.SetConfig(cfg)
	return s
}

func (s *CertificateService) SetConfig(cfg config.CertificateConfig) {
	cfg.KeyPrefix = strings.Trim(cfg.KeyPrefix, "/")
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "certificates"
	}
	s.cfg.Store(&cfg)
}

func (s *CertificateService) Config() config.CertificateConfig {
	return *s.cfg.Load()
}

func (s *CertificateService) evaluate(ctx context.Context, enrollment *model.Enrollment) (*model.ProgressSnapshot, model.Eligibility, error) {
	cur, err := s.Curriculum.GetCurriculum(ctx, enrollment.CourseID)
	if err != nil {
		return nil, model.Eligibility{}, err
	}
	snap, err := s.Progress.computeFor(ctx, enrollment)
	if err != nil {
		return nil, model.Eligibility{}, err
	}
	verdict := IsEligible(snap, cur.Course.Certificate)
	monitoring.EligibilityChecks.WithLabelValues(strconv.FormatBool(verdict.Eligible)).Inc()
	return snap, verdict, nil
}

// GetEligibility evaluates the enrollment and reports any certificate already issued.
func (s *CertificateService) GetEligibility(ctx context.Context, enrollmentID uint) (*EligibilityView, error) {
	ctx, span := tracing.StartSpan(ctx, "CertificateService.GetEligibility", attribute.Int64("enrollment.id", int64(enrollmentID)))
	defer span.End()

	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	snap, verdict, err := s.evaluate(ctx, enrollment)
	if err != nil {
		return nil, err
	}
	issued, err := s.Certificates.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	return &EligibilityView{Eligibility: verdict, Snapshot: snap, Certificate: issued}, nil
}

// Issue creates the certificate once the enrollment is eligible. Issuing
// again returns the existing certificate. When not eligible the error is
// ErrNotEligible and the verdict carries the reasons.
func (s *CertificateService) Issue(ctx context.Context, enrollmentID uint, now time.Time) (*model.Certificate, *model.Eligibility, error) {
	ctx, span := tracing.StartSpan(ctx, "CertificateService.Issue", attribute.Int64("enrollment.id", int64(enrollmentID)))
	defer span.End()

	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, nil, err
	}
	return s.issue(ctx, enrollment, now)
}

func (s *CertificateService) issue(ctx context.Context, enrollment *model.Enrollment, now time.Time) (*model.Certificate, *model.Eligibility, error) {
	if existing, err := s.Certificates.FindByEnrollment(ctx, enrollment.ID); err != nil {
		return nil, nil, err
	} else if existing != nil {
		return existing, nil, nil
	}

	_, verdict, err := s.evaluate(ctx, enrollment)
	if err != nil {
		return nil, nil, err
	}
	if !verdict.Eligible {
		return nil, &verdict, util.ErrNotEligible
	}

	cert := &model.Certificate{
		EnrollmentID:      enrollment.ID,
		UserID:            enrollment.UserID,
		CourseID:          enrollment.CourseID,
		CertificateNumber: strings.ToUpper(uuid.New().String()),
		IssuedAt:          now,
	}

	key, url, err := s.uploadDocument(ctx, cert)
	if err != nil {
		return nil, nil, fmt.Errorf("upload certificate document: %w", err)
	}
	cert.DocumentURL = url

	stored, err := s.Certificates.Create(ctx, cert)
	if err != nil {
		s.discardDocument(ctx, key)
		return nil, nil, err
	}
	if stored.CertificateNumber != cert.CertificateNumber {
		// another request issued first
		s.discardDocument(ctx, key)
		return stored, &verdict, nil
	}

	monitoring.CertificatesIssued.Inc()
	logger.Log.Info("Certificate issued",
		zap.Uint("enrollmentID", enrollment.ID),
		zap.Uint("userID", enrollment.UserID),
		zap.String("certificateNumber", stored.CertificateNumber))
	return stored, &verdict, nil
}

type certificateDocument struct {
	CertificateNumber string    `json:"certificateNumber"`
	UserID            uint      `json:"userId"`
	CourseID          uint      `json:"courseId"`
	CourseTitle       string    `json:"courseTitle"`
	EnrollmentID      uint      `json:"enrollmentId"`
	IssuedAt          time.Time `json:"issuedAt"`
}

func (s *CertificateService) uploadDocument(ctx context.Context, cert *model.Certificate) (string, string, error) {
	doc := certificateDocument{
		CertificateNumber: cert.CertificateNumber,
		UserID:            cert.UserID,
		CourseID:          cert.CourseID,
		EnrollmentID:      cert.EnrollmentID,
		IssuedAt:          cert.IssuedAt,
	}
	if cur, err := s.Curriculum.GetCurriculum(ctx, cert.CourseID); err == nil {
		doc.CourseTitle = cur.Course.Title
	}

	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", err
	}
	key := path.Join(s.Config().KeyPrefix, strconv.FormatUint(uint64(cert.CourseID), 10), cert.CertificateNumber+".json")
	url, err := s.Storage.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), util.MimeJSON)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

func (s *CertificateService) discardDocument(ctx context.Context, key string) {
	if err := s.Storage.Delete(ctx, key); err != nil {
		logger.Log.Warn("Failed to remove unused certificate document", zap.String("key", key), zap.Error(err))
	}
}

// OnCourseCompleted issues the certificate automatically when configured.
func (s *CertificateService) OnCourseCompleted(ctx context.Context, enrollment *model.Enrollment, snapshot *model.ProgressSnapshot, now time.Time) error {
	if !s.Config().AutoIssue {
		return nil
	}
	_, _, err := s.issue(ctx, enrollment, now)
	if errors.Is(err, util.ErrNotEligible) {
		return nil
	}
	return err
}
