package model

// LessonStatus is one lesson's line in a progress snapshot.
type LessonStatus struct {
	LessonID    uint        `json:"lessonId"`
	ContentKind ContentKind `json:"contentKind"`
	Completed   bool        `json:"completed"`
}

// ModuleProgress is the per-module breakdown of a snapshot.
type ModuleProgress struct {
	ModuleID         uint           `json:"moduleId"`
	Completed        bool           `json:"completed"`
	CompletedLessons int            `json:"completedLessons"`
	TotalLessons     int            `json:"totalLessons"`
	Lessons          []LessonStatus `json:"lessons"`
}

// FinalAssessmentStatus summarizes the course final.
type FinalAssessmentStatus struct {
	Exists         bool `json:"exists"`
	Required       bool `json:"required"`
	Attempted      bool `json:"attempted"`
	Passed         bool `json:"passed"`
	BestPercentage int  `json:"bestPercentage"`
	PendingManual  bool `json:"pendingManual"`
}

// AssessmentStatus summarizes one assessment's best attempt.
type AssessmentStatus struct {
	AssessmentID   uint            `json:"assessmentId"`
	Level          AssessmentLevel `json:"level"`
	Required       bool            `json:"required"`
	Attempted      bool            `json:"attempted"`
	Passed         bool            `json:"passed"`
	BestPercentage int             `json:"bestPercentage"`
}

// ProgressSnapshot is the derived progress of one enrollment.
type ProgressSnapshot struct {
	EnrollmentID         uint                  `json:"enrollmentId"`
	CourseID             uint                  `json:"courseId"`
	ProgressPercent      float64               `json:"progressPercent"`
	CompletedLessons     int                   `json:"completedLessons"`
	TotalLessons         int                   `json:"totalLessons"`
	CompletedAssessments int                   `json:"completedAssessments"`
	TotalAssessments     int                   `json:"totalAssessments"`
	Modules              []ModuleProgress      `json:"modules"`
	Assessments          []AssessmentStatus    `json:"assessments"`
	FinalAssessment      FinalAssessmentStatus `json:"finalAssessment"`
	OverallScore         float64               `json:"overallScore"`
	AllModulesComplete   bool                  `json:"allModulesComplete"`
	AllAssessmentsPassed bool                  `json:"allAssessmentsPassed"`
	CourseComplete       bool                  `json:"courseComplete"`
}

// EligibilityReason is one unmet certificate condition.
type EligibilityReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Eligibility is the certificate verdict for an enrollment.
type Eligibility struct {
	Eligible bool                `json:"eligible"`
	Reasons  []EligibilityReason `json:"reasons"`
}
