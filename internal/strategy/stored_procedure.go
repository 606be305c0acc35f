package strategy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/datasource"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"
	"automation-scheduler/pkg/utils"
)

const (
	ExecutionModeScalar   = "scalar"
	ExecutionModeNonQuery = "non_query"
)

type StoredProcedureParam struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type StoredProcedureConfig struct {
	Connection        string                 `json:"connection"`
	ProcedureName     string                 `json:"procedure_name"`
	ExecutionMode     string                 `json:"execution_mode"`
	Parameters        []StoredProcedureParam `json:"parameters"`
	ErrorReturnValues []string               `json:"error_return_values"`
}

type StoredProcedureStrategy struct {
	log      *logger.Logger
	registry datasource.Registry
}

func NewStoredProcedureStrategy(log *logger.Logger, registry datasource.Registry) JobExecutionStrategy {
	return &StoredProcedureStrategy{log: log, registry: registry}
}

func (s *StoredProcedureStrategy) GetType() model.JobType {
	return model.JobTypeStoredProcedure
}

func (s *StoredProcedureStrategy) Validate(configuration json.RawMessage) error {
	var cfg StoredProcedureConfig
	if err := decodeConfig(configuration, &cfg); err != nil {
		return err
	}
	if cfg.Connection == "" {
		return configError("stored procedure connection is required")
	}
	if err := datasource.ValidateRoutineName(cfg.ProcedureName); err != nil {
		return errors.Mark(errors.Wrap(err, "procedure_name"), errors.ErrScheduleConfiguration)
	}
	switch cfg.ExecutionMode {
	case "", ExecutionModeScalar, ExecutionModeNonQuery:
	default:
		return configError("unknown execution_mode %q", cfg.ExecutionMode)
	}
	for _, p := range cfg.Parameters {
		if _, ok := paramConverters[strings.ToLower(p.Type)]; !ok {
			return configError("parameter %q has unsupported type %q", p.Name, p.Type)
		}
	}
	return nil
}

func (s *StoredProcedureStrategy) Execute(ctx context.Context, req ExecutionRequest) (JobResult, error) {
	if err := s.Validate(req.Configuration); err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, err
	}
	var cfg StoredProcedureConfig
	_ = json.Unmarshal(req.Configuration, &cfg)

	args := make([]interface{}, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		v, err := paramConverters[strings.ToLower(p.Type)](Substitute(p.Value, req.Parameters))
		if err != nil {
			return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, executorError(err, "parameter %q", p.Name)
		}
		args = append(args, v)
	}

	conn, err := s.registry.Get(ctx, cfg.Connection)
	if err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, err
	}

	if cfg.ExecutionMode == ExecutionModeScalar {
		var out sql.NullString
		err := conn.DB.QueryRowContext(ctx, conn.Dialect.ScalarCall(cfg.ProcedureName, len(args)), args...).Scan(&out)
		if err != nil {
			return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, executorError(err, "call %s", cfg.ProcedureName)
		}
		if utils.ContainsString(cfg.ErrorReturnValues, out.String) {
			return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: out.String},
				executorError(nil, "%s returned error value %q", cfg.ProcedureName, out.String)
		}
		return JobResult{Success: true, ExitCode: JOB_EXIT_CODE_SUCCESS, Output: out.String}, nil
	}

	res, err := conn.DB.ExecContext(ctx, conn.Dialect.ProcedureCall(cfg.ProcedureName, len(args)), args...)
	if err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, executorError(err, "call %s", cfg.ProcedureName)
	}
	output := "ok"
	if n, err := res.RowsAffected(); err == nil {
		output = fmt.Sprintf("rows affected: %d", n)
	}
	return JobResult{Success: true, ExitCode: JOB_EXIT_CODE_SUCCESS, Output: output}, nil
}

func stringParam(v string) (interface{}, error) { return v, nil }

var paramConverters = map[string]func(string) (interface{}, error){
	"":       stringParam,
	"string": stringParam,
	"int": func(v string) (interface{}, error) {
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	},
	"decimal": func(v string) (interface{}, error) {
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	},
	"bool": func(v string) (interface{}, error) {
		return strconv.ParseBool(strings.TrimSpace(v))
	},
	"datetime": func(v string) (interface{}, error) {
		v = strings.TrimSpace(v)
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", model.DateLayout} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, errors.Newf("%q is not a datetime", v)
	},
}

// CheckParamType reports whether value parses as dataType. Unknown types are
// rejected.
func CheckParamType(dataType, value string) error {
	convert, ok := paramConverters[strings.ToLower(dataType)]
	if !ok {
		return errors.Newf("unsupported parameter type %q", dataType)
	}
	_, err := convert(value)
	return err
}
