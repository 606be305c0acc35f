package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"automation-scheduler/internal/dto"
	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/pkg/cronexpr"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"

	"gorm.io/datatypes"
)

type ScheduleService interface {
	Create(ctx context.Context, req dto.ScheduleRequest, createdBy string) (*model.Schedule, error)
	Update(ctx context.Context, id uint, req dto.ScheduleRequest) (*model.Schedule, error)
	Delete(ctx context.Context, id uint) error
	Get(ctx context.Context, id uint) (*model.Schedule, error)
	List(ctx context.Context, param model.GetScheduleParam) ([]model.Schedule, error)
	ListExecutions(ctx context.Context, param model.GetJobExecutionParam) ([]model.JobExecution, error)
	GetExecution(ctx context.Context, id uint) (*model.JobExecution, error)
}

type scheduleService struct {
	log          *logger.Logger
	scheduleRepo repository.ScheduleRepository
	paramRepo    repository.JobParameterRepository
	jobExecRepo  repository.JobExecutionRepository
	unitOfWork   repository.UnitOfWork
	taskExecutor TaskExecutor
	now          func() time.Time
}

func NewScheduleService(
	log *logger.Logger,
	scheduleRepo repository.ScheduleRepository,
	paramRepo repository.JobParameterRepository,
	jobExecRepo repository.JobExecutionRepository,
	unitOfWork repository.UnitOfWork,
	taskExecutor TaskExecutor,
) ScheduleService {
	return &scheduleService{
		log:          log,
		scheduleRepo: scheduleRepo,
		paramRepo:    paramRepo,
		jobExecRepo:  jobExecRepo,
		unitOfWork:   unitOfWork,
		taskExecutor: taskExecutor,
		now:          utils.TimeNowUTC,
	}
}

// validate checks everything a schedule needs to fire: expression, zone,
// job configuration and parameter sources.
func (s *scheduleService) validate(req dto.ScheduleRequest) error {
	if err := cronexpr.Validate(req.CronExpression, req.TimeZone, s.now()); err != nil {
		return err
	}
	if !req.JobType.IsValid() {
		return errors.Mark(errors.Newf("unsupported job type %q", req.JobType), errors.ErrScheduleConfiguration)
	}
	if err := s.taskExecutor.Validate(req.JobType, req.JobConfiguration); err != nil {
		return err
	}
	seen := make(map[string]bool, len(req.Parameters))
	for _, p := range req.Parameters {
		if seen[p.ParameterName] {
			return errors.Mark(errors.Newf("duplicate parameter %q", p.ParameterName), errors.ErrScheduleConfiguration)
		}
		seen[p.ParameterName] = true
		if p.IsDynamic {
			if err := datasource.ValidateRoutineName(p.SourceQuery); err != nil {
				return errors.Mark(errors.Wrapf(err, "parameter %s", p.ParameterName), errors.ErrScheduleConfiguration)
			}
		}
	}
	return nil
}

func (s *scheduleService) Create(ctx context.Context, req dto.ScheduleRequest, createdBy string) (*model.Schedule, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	schedule := &model.Schedule{CreatedBy: createdBy}
	applyScheduleRequest(schedule, req)
	if err := s.arm(schedule); err != nil {
		return nil, err
	}

	err := s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.scheduleRepo.Create(ctx, schedule, opts...); err != nil {
			return errors.Wrap(err, "create schedule")
		}
		params := toJobParameters(req.Parameters)
		if err := s.paramRepo.ReplaceForSchedule(ctx, schedule.ID, params, opts...); err != nil {
			return errors.Wrap(err, "create schedule parameters")
		}
		schedule.Parameters = params
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Schedule created",
		logger.UintField("schedule_id", schedule.ID),
		logger.StringField("name", schedule.Name),
		logger.StringField("job_type", string(schedule.JobType)),
	)
	return schedule, nil
}

// Update replaces the definition. System schedules accept only retiming and
// enabling or disabling.
func (s *scheduleService) Update(ctx context.Context, id uint, req dto.ScheduleRequest) (*model.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if schedule.IsSystem {
		if err := checkSystemUpdate(*schedule, req); err != nil {
			return nil, err
		}
		if err := cronexpr.Validate(req.CronExpression, req.TimeZone, s.now()); err != nil {
			return nil, err
		}
		schedule.CronExpression = req.CronExpression
		schedule.TimeZone = req.TimeZone
		schedule.IsEnabled = req.IsEnabled
		if err := s.arm(schedule); err != nil {
			return nil, err
		}
		if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
			return nil, errors.Wrapf(err, "update schedule %d", id)
		}
		return schedule, nil
	}

	if err := s.validate(req); err != nil {
		return nil, err
	}
	applyScheduleRequest(schedule, req)
	if err := s.arm(schedule); err != nil {
		return nil, err
	}

	err = s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		if err := s.scheduleRepo.Update(ctx, schedule, opts...); err != nil {
			return errors.Wrapf(err, "update schedule %d", id)
		}
		params := toJobParameters(req.Parameters)
		if err := s.paramRepo.ReplaceForSchedule(ctx, schedule.ID, params, opts...); err != nil {
			return errors.Wrapf(err, "replace parameters of schedule %d", id)
		}
		schedule.Parameters = params
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "Schedule updated", logger.UintField("schedule_id", id))
	return schedule, nil
}

func (s *scheduleService) Delete(ctx context.Context, id uint) error {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if schedule.IsSystem {
		return errors.Mark(errors.Newf("schedule %d is a system schedule and cannot be deleted", id), errors.ErrSystemProtected)
	}
	if err := s.scheduleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Schedule deleted", logger.UintField("schedule_id", id))
	return nil
}

func (s *scheduleService) Get(ctx context.Context, id uint) (*model.Schedule, error) {
	schedule, err := s.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	params, err := s.paramRepo.FindBySchedule(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load parameters of schedule %d", id)
	}
	schedule.Parameters = params
	return schedule, nil
}

func (s *scheduleService) List(ctx context.Context, param model.GetScheduleParam) ([]model.Schedule, error) {
	return s.scheduleRepo.Get(ctx, &param)
}

func (s *scheduleService) ListExecutions(ctx context.Context, param model.GetJobExecutionParam) ([]model.JobExecution, error) {
	if param.ScheduleID != nil {
		if _, err := s.scheduleRepo.FindByID(ctx, *param.ScheduleID); err != nil {
			return nil, err
		}
	}
	return s.jobExecRepo.Get(ctx, &param)
}

func (s *scheduleService) GetExecution(ctx context.Context, id uint) (*model.JobExecution, error) {
	return s.jobExecRepo.FindByID(ctx, id)
}

// arm resets the retry counter and sets NextRunTime from the expression, or
// clears it for a disabled schedule.
func (s *scheduleService) arm(schedule *model.Schedule) error {
	schedule.CurrentRetryCount = 0
	if !schedule.IsEnabled {
		schedule.NextRunTime = sql.NullTime{}
		return nil
	}
	next, err := cronexpr.Next(schedule.CronExpression, schedule.TimeZone, s.now())
	if err != nil {
		return err
	}
	schedule.NextRunTime = sql.NullTime{Time: next, Valid: true}
	return nil
}

func checkSystemUpdate(current model.Schedule, req dto.ScheduleRequest) error {
	changed := current.Name != req.Name ||
		current.JobType != req.JobType ||
		current.MaxRetries != req.MaxRetries ||
		current.RetryDelayMinutes != req.RetryDelayMinutes ||
		!jsonEqual(current.JobConfiguration, req.JobConfiguration)
	if changed {
		return errors.Mark(errors.Newf("schedule %d is a system schedule, only its timing and enabled flag can change", current.ID), errors.ErrSystemProtected)
	}
	return nil
}

func jsonEqual(a, b []byte) bool {
	var va, vb interface{}
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return string(a) == string(b)
	}
	ca, _ := json.Marshal(va)
	cb, _ := json.Marshal(vb)
	return string(ca) == string(cb)
}

func applyScheduleRequest(schedule *model.Schedule, req dto.ScheduleRequest) {
	schedule.TenantID = req.TenantID
	schedule.Name = req.Name
	schedule.Description = req.Description
	schedule.JobType = req.JobType
	schedule.CronExpression = req.CronExpression
	schedule.TimeZone = req.TimeZone
	schedule.IsEnabled = req.IsEnabled
	schedule.MaxRetries = req.MaxRetries
	schedule.RetryDelayMinutes = req.RetryDelayMinutes
	schedule.TimeoutMinutes = req.TimeoutMinutes
	schedule.JobConfiguration = datatypes.JSON(req.JobConfiguration)
	schedule.NotifyOnSuccess = req.NotifyOnSuccess
	schedule.NotifyOnFailure = true
	if req.NotifyOnFailure != nil {
		schedule.NotifyOnFailure = *req.NotifyOnFailure
	}
}

func toJobParameters(reqs []dto.JobParameterRequest) []model.JobParameter {
	params := make([]model.JobParameter, 0, len(reqs))
	for _, p := range reqs {
		params = append(params, model.JobParameter{
			ParameterName:    p.ParameterName,
			ParameterValue:   p.ParameterValue,
			IsDynamic:        p.IsDynamic,
			SourceQuery:      p.SourceQuery,
			SourceConnection: p.SourceConnection,
			DataType:         p.DataType,
			DisplayOrder:     p.DisplayOrder,
		})
	}
	return params
}
