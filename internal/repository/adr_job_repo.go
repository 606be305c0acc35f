package repository

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AdrJobRepository interface {
	Get(ctx context.Context, param *model.GetAdrJobParam, opts ...utils.DBOption) ([]model.AdrJob, error)
	FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.AdrJob, error)
	FindByAccountPeriod(ctx context.Context, accountID uint, start, end time.Time, opts ...utils.DBOption) (*model.AdrJob, error)
	Create(ctx context.Context, job *model.AdrJob, opts ...utils.DBOption) error
	Update(ctx context.Context, job *model.AdrJob, opts ...utils.DBOption) error
}

type adrJobRepository struct {
	db *gorm.DB
}

func NewAdrJobRepository(db *gorm.DB) AdrJobRepository {
	return &adrJobRepository{db: db}
}

func (r *adrJobRepository) Get(ctx context.Context, param *model.GetAdrJobParam, opts ...utils.DBOption) ([]model.AdrJob, error) {
	var jobs []model.AdrJob
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.AdrJob{})
	if param != nil {
		if len(param.IDs) > 0 {
			db = db.Where("id IN ?", param.IDs)
		}
		if param.AdrAccountID != nil {
			db = db.Where("adr_account_id = ?", *param.AdrAccountID)
		}
		if len(param.Statuses) > 0 {
			db = db.Where("status IN ?", param.Statuses)
		}
		if param.PeriodEndBefore != nil {
			db = db.Where("billing_period_end < ?", *param.PeriodEndBefore)
		}
		if param.WithAccount {
			db = db.Preload("Account")
		}
		if param.Limit != nil {
			db = db.Limit(*param.Limit)
		}
	}
	if err := db.Order("id ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *adrJobRepository) FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.AdrJob, error) {
	var job model.AdrJob
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Preload("Account").First(&job, id).Error; err != nil {
		return nil, notFound(err, "adr job", id)
	}
	return &job, nil
}

// FindByAccountPeriod returns nil, nil when no job exists for the period.
func (r *adrJobRepository) FindByAccountPeriod(ctx context.Context, accountID uint, start, end time.Time, opts ...utils.DBOption) (*model.AdrJob, error) {
	var jobs []model.AdrJob
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("adr_account_id = ? AND billing_period_start = ? AND billing_period_end = ?", accountID, start, end).
		Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func (r *adrJobRepository) Create(ctx context.Context, job *model.AdrJob, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Omit(clause.Associations).Create(job).Error
}

func (r *adrJobRepository) Update(ctx context.Context, job *model.AdrJob, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Omit(clause.Associations).Save(job).Error
}
