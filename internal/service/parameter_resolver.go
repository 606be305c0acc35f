package service

import (
	"context"
	"database/sql"

	"automation-scheduler/internal/model"
	"automation-scheduler/internal/repository"
	"automation-scheduler/internal/strategy"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

// ParameterResolver turns a schedule's JobParameters into name/value pairs.
// Resolution is all or nothing: any failure returns an error marked
// ErrParameterResolutionFailed and no values.
type ParameterResolver interface {
	Resolve(ctx context.Context, scheduleID uint) (map[string]string, error)
}

type parameterResolver struct {
	log            *logger.Logger
	paramRepo      repository.JobParameterRepository
	registry       datasource.Registry
	allowedSources []string
}

func NewParameterResolver(log *logger.Logger, paramRepo repository.JobParameterRepository, registry datasource.Registry, allowedSources []string) ParameterResolver {
	return &parameterResolver{
		log:            log,
		paramRepo:      paramRepo,
		registry:       registry,
		allowedSources: allowedSources,
	}
}

func (r *parameterResolver) Resolve(ctx context.Context, scheduleID uint) (map[string]string, error) {
	params, err := r.paramRepo.FindBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, resolutionError(err, "load parameters of schedule %d", scheduleID)
	}

	values := make(map[string]string, len(params))
	for _, p := range params {
		value := p.ParameterValue
		if p.IsDynamic {
			value, err = r.resolveDynamic(ctx, p)
			if err != nil {
				return nil, err
			}
		}
		if p.DataType != "" {
			if err := strategy.CheckParamType(p.DataType, value); err != nil {
				return nil, resolutionError(err, "parameter %s", p.ParameterName)
			}
		}
		values[p.ParameterName] = value
	}

	r.log.DebugContext(ctx, "Resolved job parameters",
		logger.UintField("schedule_id", scheduleID),
		logger.IntField("count", len(values)),
	)
	return values, nil
}

func (r *parameterResolver) resolveDynamic(ctx context.Context, p model.JobParameter) (string, error) {
	if err := datasource.ValidateRoutineName(p.SourceQuery); err != nil {
		return "", resolutionError(err, "parameter %s", p.ParameterName)
	}
	if len(r.allowedSources) > 0 && !utils.ContainsString(r.allowedSources, p.SourceQuery) {
		return "", resolutionError(nil, "parameter %s: routine %q is not an allowed source", p.ParameterName, p.SourceQuery)
	}

	conn, err := r.registry.Get(ctx, p.SourceConnection)
	if err != nil {
		return "", resolutionError(err, "parameter %s", p.ParameterName)
	}

	var value sql.NullString
	query := conn.Dialect.ScalarCall(p.SourceQuery, 0)
	if err := conn.DB.QueryRowContext(ctx, query).Scan(&value); err != nil {
		return "", resolutionError(err, "parameter %s: call %s on %s", p.ParameterName, p.SourceQuery, p.SourceConnection)
	}
	if !value.Valid {
		return "", resolutionError(nil, "parameter %s: %s returned null", p.ParameterName, p.SourceQuery)
	}
	return value.String, nil
}

func resolutionError(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.Mark(errors.Newf(format, args...), errors.ErrParameterResolutionFailed)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), errors.ErrParameterResolutionFailed)
}
