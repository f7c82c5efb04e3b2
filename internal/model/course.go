package model

// CertificatePolicy decides when a finished course qualifies for a certificate.
// swagger:model CertificatePolicy
type CertificatePolicy struct {
	FinalAssessmentRequired     bool `gorm:"not null" json:"finalAssessmentRequired"`
	MinimumCoursePassingScore   int  `gorm:"not null" json:"minimumCoursePassingScore"`
	RequireAllModulesComplete   bool `gorm:"not null" json:"requireAllModulesComplete"`
	RequireAllAssessmentsPassed bool `gorm:"not null" json:"requireAllAssessmentsPassed"`
}

// CompletionPolicy holds the two course completion switches.
type CompletionPolicy struct {
	RequireAllModulesComplete   bool `json:"requireAllModulesComplete"`
	RequireAllAssessmentsPassed bool `json:"requireAllAssessmentsPassed"`
}

// swagger:model Course
type Course struct {
	BaseModel
	Title                       string            `gorm:"size:255;not null" json:"title"`
	RequireAllModulesComplete   bool              `gorm:"not null" json:"requireAllModulesComplete"`
	RequireAllAssessmentsPassed bool              `gorm:"not null" json:"requireAllAssessmentsPassed"`
	Certificate                 CertificatePolicy `gorm:"embedded;embeddedPrefix:certificate_" json:"certificatePolicy"`
}

func (Course) TableName() string {
	return "courses"
}

func (c Course) CompletionPolicy() CompletionPolicy {
	return CompletionPolicy{
		RequireAllModulesComplete:   c.RequireAllModulesComplete,
		RequireAllAssessmentsPassed: c.RequireAllAssessmentsPassed,
	}
}
