package model

import "time"

// swagger:model Certificate
type Certificate struct {
	BaseModel
	EnrollmentID      uint      `gorm:"uniqueIndex;type:bigint unsigned;not null" json:"enrollmentId"`
	UserID            uint      `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	CourseID          uint      `gorm:"index;type:bigint unsigned;not null" json:"courseId"`
	CertificateNumber string    `gorm:"size:64;uniqueIndex" json:"certificateNumber"`
	IssuedAt          time.Time `json:"issuedAt"`
	DocumentURL       string    `gorm:"size:512" json:"documentUrl"`
}

func (Certificate) TableName() string {
	return "certificates"
}
