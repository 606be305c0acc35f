package repository

import (
	"context"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
)

type JobParameterRepository interface {
	FindBySchedule(ctx context.Context, scheduleID uint, opts ...utils.DBOption) ([]model.JobParameter, error)
	ReplaceForSchedule(ctx context.Context, scheduleID uint, params []model.JobParameter, opts ...utils.DBOption) error
}

type jobParameterRepository struct {
	db *gorm.DB
}

func NewJobParameterRepository(db *gorm.DB) JobParameterRepository {
	return &jobParameterRepository{db: db}
}

func (r *jobParameterRepository) FindBySchedule(ctx context.Context, scheduleID uint, opts ...utils.DBOption) ([]model.JobParameter, error) {
	var params []model.JobParameter
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("schedule_id = ?", scheduleID).
		Order("display_order ASC, id ASC").
		Find(&params).Error
	if err != nil {
		return nil, err
	}
	return params, nil
}

// ReplaceForSchedule soft-deletes the current parameter set and inserts params.
// Run it inside a UnitOfWork.
func (r *jobParameterRepository) ReplaceForSchedule(ctx context.Context, scheduleID uint, params []model.JobParameter, opts ...utils.DBOption) error {
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
	if err := db.Where("schedule_id = ?", scheduleID).Delete(&model.JobParameter{}).Error; err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	for i := range params {
		params[i].ID = 0
		params[i].ScheduleID = scheduleID
	}
	return db.Create(&params).Error
}
