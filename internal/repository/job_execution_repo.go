package repository

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
)

type JobExecutionRepository interface {
	Create(ctx context.Context, execution *model.JobExecution, opts ...utils.DBOption) error
	Finish(ctx context.Context, execution *model.JobExecution, opts ...utils.DBOption) (bool, error)
	FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.JobExecution, error)
	FindRunningBySchedule(ctx context.Context, scheduleID uint, opts ...utils.DBOption) (*model.JobExecution, error)
	FindRunning(ctx context.Context, opts ...utils.DBOption) ([]model.JobExecution, error)
	Get(ctx context.Context, param *model.GetJobExecutionParam, opts ...utils.DBOption) ([]model.JobExecution, error)
	DeleteOlderThan(ctx context.Context, date time.Time, opts ...utils.DBOption) (int64, error)
}

type jobExecutionRepository struct {
	db *gorm.DB
}

func NewJobExecutionRepository(db *gorm.DB) JobExecutionRepository {
	return &jobExecutionRepository{db: db}
}

// Create inserts a Running execution. The partial unique index on running
// executions turns a second concurrent insert into ErrConcurrencyConflict.
func (r *jobExecutionRepository) Create(ctx context.Context, execution *model.JobExecution, opts ...utils.DBOption) error {
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(execution).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Mark(errors.Wrapf(err, "schedule %d already has a running execution", execution.ScheduleID), errors.ErrConcurrencyConflict)
	}
	return err
}

// Finish writes the terminal state only if the row is still Running. It
// reports false when another actor closed the execution first.
func (r *jobExecutionRepository) Finish(ctx context.Context, execution *model.JobExecution, opts ...utils.DBOption) (bool, error) {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.JobExecution{}).
		Where("id = ? AND status = ?", execution.ID, model.ExecutionStatusRunning).
		Updates(map[string]interface{}{
			"status":        execution.Status,
			"end_time":      execution.EndTime,
			"duration_ms":   execution.DurationMs,
			"output":        execution.Output,
			"error_message": execution.ErrorMessage,
			"error_tag":     execution.ErrorTag,
			"retry_count":   execution.RetryCount,
			"cancelled_by":  execution.CancelledBy,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobExecutionRepository) FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.JobExecution, error) {
	var execution model.JobExecution
	if err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&execution, id).Error; err != nil {
		return nil, notFound(err, "job execution", id)
	}
	return &execution, nil
}

// FindRunningBySchedule returns nil, nil when the schedule has no running execution.
func (r *jobExecutionRepository) FindRunningBySchedule(ctx context.Context, scheduleID uint, opts ...utils.DBOption) (*model.JobExecution, error) {
	var executions []model.JobExecution
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("schedule_id = ? AND status = ?", scheduleID, model.ExecutionStatusRunning).
		Limit(1).
		Find(&executions).Error
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, nil
	}
	return &executions[0], nil
}

func (r *jobExecutionRepository) FindRunning(ctx context.Context, opts ...utils.DBOption) ([]model.JobExecution, error) {
	var executions []model.JobExecution
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("status = ?", model.ExecutionStatusRunning).
		Order("start_time ASC").
		Find(&executions).Error
	if err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *jobExecutionRepository) Get(ctx context.Context, param *model.GetJobExecutionParam, opts ...utils.DBOption) ([]model.JobExecution, error) {
	var executions []model.JobExecution
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.JobExecution{})
	if param != nil {
		if len(param.IDs) > 0 {
			db = db.Where("id IN ?", param.IDs)
		}
		if param.ScheduleID != nil {
			db = db.Where("schedule_id = ?", *param.ScheduleID)
		}
		if param.Status != nil {
			db = db.Where("status = ?", *param.Status)
		}
		if param.StartedBefore != nil {
			db = db.Where("start_time < ?", *param.StartedBefore)
		}
		if param.Limit != nil {
			db = db.Limit(*param.Limit)
		}
	}
	if err := db.Order("start_time DESC").Find(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}

// DeleteOlderThan removes finished executions that started before date.
func (r *jobExecutionRepository) DeleteOlderThan(ctx context.Context, date time.Time, opts ...utils.DBOption) (int64, error) {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("start_time < ? AND status <> ?", date, model.ExecutionStatusRunning).
		Delete(&model.JobExecution{})
	return res.RowsAffected, res.Error
}
