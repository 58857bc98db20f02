package repository

import (
	"context"

	"gorm.io/gorm"

	"prep-service/internal/model"
)

type StepEditAuditRepository struct {
	db *gorm.DB
}

func NewStepEditAuditRepository(db *gorm.DB) *StepEditAuditRepository {
	return &StepEditAuditRepository{db: db}
}

func (r *StepEditAuditRepository) Create(ctx context.Context, audit *model.StepEditAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

type StepEditAuditFilter struct {
	PreparationID *string
	AdminUserID   *string
	Limit         int
}

func (r *StepEditAuditRepository) List(ctx context.Context, filter StepEditAuditFilter) ([]model.StepEditAudit, error) {
	var audits []model.StepEditAudit
	query := r.db.WithContext(ctx).Model(&model.StepEditAudit{})

	if filter.PreparationID != nil {
		query = query.Where("preparation_id = ?", *filter.PreparationID)
	}
	if filter.AdminUserID != nil {
		query = query.Where("admin_user_id = ?", *filter.AdminUserID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Order("created_at DESC").Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}
