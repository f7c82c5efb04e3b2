package repository

import (
	"context"
	"course_progress_backend/internal/model"
	"errors"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

// FindByEnrollment returns nil when no certificate was issued yet.
func (r *CertificateRepository) FindByEnrollment(ctx context.Context, enrollmentID uint) (*model.Certificate, error) {
	var c model.Certificate
	err := r.DB.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the record. When another request issued the certificate
// first, the existing record is returned instead.
func (r *CertificateRepository) Create(ctx context.Context, c *model.Certificate) (*model.Certificate, error) {
	err := r.DB.WithContext(ctx).Create(c).Error
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, err
	}
	existing, ferr := r.FindByEnrollment(ctx, c.EnrollmentID)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, err
	}
	return existing, nil
}
