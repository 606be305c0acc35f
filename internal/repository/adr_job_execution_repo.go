package repository

import (
	"context"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
)

type AdrJobExecutionRepository interface {
	Create(ctx context.Context, execution *model.AdrJobExecution, opts ...utils.DBOption) error
	FindByJob(ctx context.Context, jobID uint, opts ...utils.DBOption) ([]model.AdrJobExecution, error)
}

type adrJobExecutionRepository struct {
	db *gorm.DB
}

func NewAdrJobExecutionRepository(db *gorm.DB) AdrJobExecutionRepository {
	return &adrJobExecutionRepository{db: db}
}

func (r *adrJobExecutionRepository) Create(ctx context.Context, execution *model.AdrJobExecution, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(execution).Error
}

func (r *adrJobExecutionRepository) FindByJob(ctx context.Context, jobID uint, opts ...utils.DBOption) ([]model.AdrJobExecution, error) {
	var executions []model.AdrJobExecution
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("adr_job_id = ?", jobID).
		Order("started_at ASC").
		Find(&executions).Error
	if err != nil {
		return nil, err
	}
	return executions, nil
}
