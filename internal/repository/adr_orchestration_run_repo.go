package repository

import (
	"context"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/utils"

	"gorm.io/gorm"
)

type AdrOrchestrationRunRepository interface {
	Create(ctx context.Context, run *model.AdrOrchestrationRun, opts ...utils.DBOption) error
	Update(ctx context.Context, run *model.AdrOrchestrationRun, opts ...utils.DBOption) error
	FindByRequestID(ctx context.Context, requestID string, opts ...utils.DBOption) (*model.AdrOrchestrationRun, error)
	List(ctx context.Context, limit int, opts ...utils.DBOption) ([]model.AdrOrchestrationRun, error)
	FailRunning(ctx context.Context, message string, now time.Time, opts ...utils.DBOption) (int64, error)
}

type adrOrchestrationRunRepository struct {
	db *gorm.DB
}

func NewAdrOrchestrationRunRepository(db *gorm.DB) AdrOrchestrationRunRepository {
	return &adrOrchestrationRunRepository{db: db}
}

func (r *adrOrchestrationRunRepository) Create(ctx context.Context, run *model.AdrOrchestrationRun, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(run).Error
}

func (r *adrOrchestrationRunRepository) Update(ctx context.Context, run *model.AdrOrchestrationRun, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Save(run).Error
}

func (r *adrOrchestrationRunRepository) FindByRequestID(ctx context.Context, requestID string, opts ...utils.DBOption) (*model.AdrOrchestrationRun, error) {
	var run model.AdrOrchestrationRun
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("request_id = ?", requestID).
		First(&run).Error
	if err != nil {
		return nil, notFound(err, "orchestration run", requestID)
	}
	return &run, nil
}

// List returns the most recent runs first.
func (r *adrOrchestrationRunRepository) List(ctx context.Context, limit int, opts ...utils.DBOption) ([]model.AdrOrchestrationRun, error) {
	var runs []model.AdrOrchestrationRun
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Order("started_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// FailRunning closes runs a previous process left in Running.
func (r *adrOrchestrationRunRepository) FailRunning(ctx context.Context, message string, now time.Time, opts ...utils.DBOption) (int64, error) {
	res := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.AdrOrchestrationRun{}).
		Where("status = ?", model.OrchestrationStatusRunning).
		Updates(map[string]interface{}{
			"status":        model.OrchestrationStatusFailed,
			"error_message": message,
			"completed_at":  now,
		})
	return res.RowsAffected, res.Error
}
