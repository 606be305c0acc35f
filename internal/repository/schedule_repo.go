package repository

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScheduleRepository interface {
	FindDueSchedules(ctx context.Context, now time.Time, limit int, opts ...utils.DBOption) ([]model.Schedule, error)
	FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.Schedule, error)
	Get(ctx context.Context, param *model.GetScheduleParam, opts ...utils.DBOption) ([]model.Schedule, error)
	Create(ctx context.Context, schedule *model.Schedule, opts ...utils.DBOption) error
	Update(ctx context.Context, schedule *model.Schedule, opts ...utils.DBOption) error
	UpdateTiming(ctx context.Context, id uint, timing model.ScheduleTiming, opts ...utils.DBOption) error
	Delete(ctx context.Context, id uint, opts ...utils.DBOption) error
}

type scheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

// FindDueSchedules returns enabled schedules whose NextRunTime has passed,
// oldest first.
func (r *scheduleRepository) FindDueSchedules(ctx context.Context, now time.Time, limit int, opts ...utils.DBOption) ([]model.Schedule, error) {
	var schedules []model.Schedule
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("is_enabled = ? AND next_run_time IS NOT NULL AND next_run_time <= ?", true, now).
		Order("next_run_time ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepository) FindByID(ctx context.Context, id uint, opts ...utils.DBOption) (*model.Schedule, error) {
	var schedule model.Schedule
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).First(&schedule, id).Error
	if err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return &schedule, nil
}

func (r *scheduleRepository) Get(ctx context.Context, param *model.GetScheduleParam, opts ...utils.DBOption) ([]model.Schedule, error) {
	var schedules []model.Schedule
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.Schedule{})
	if param != nil {
		if len(param.IDs) > 0 {
			db = db.Where("id IN ?", param.IDs)
		}
		if param.TenantID != nil {
			db = db.Where("tenant_id = ?", *param.TenantID)
		}
		if param.IsEnabled != nil {
			db = db.Where("is_enabled = ?", *param.IsEnabled)
		}
		if param.JobType != nil {
			db = db.Where("job_type = ?", *param.JobType)
		}
		if param.DueBefore != nil {
			db = db.Where("next_run_time <= ?", *param.DueBefore)
		}
		if param.Limit != nil {
			db = db.Limit(*param.Limit)
		}
		if param.Offset != nil {
			db = db.Offset(*param.Offset)
		}
	}
	if err := db.Order("id ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *model.Schedule, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Omit(clause.Associations).Create(schedule).Error
}

// Update writes every column of the definition, including zero values.
func (r *scheduleRepository) Update(ctx context.Context, schedule *model.Schedule, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Omit(clause.Associations).Save(schedule).Error
}

func (r *scheduleRepository) UpdateTiming(ctx context.Context, id uint, timing model.ScheduleTiming, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.Schedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_run_time":       timing.NextRunTime,
			"last_run_time":       timing.LastRunTime,
			"current_retry_count": timing.CurrentRetryCount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "schedule", id)
	}
	return nil
}

func (r *scheduleRepository) Delete(ctx context.Context, id uint, opts ...utils.DBOption) error {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Delete(&model.Schedule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "schedule", id)
	}
	return nil
}
