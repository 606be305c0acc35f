package strategy

import (
	"context"
	"encoding/json"
	"regexp"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
)

const (
	JOB_EXIT_CODE_SUCCESS = 0
	JOB_EXIT_CODE_FAILED  = 1
	JOB_EXIT_CODE_KILLED  = -1
)

// ExecutionRequest is the input of one job run. Parameters are already
// resolved and are substituted into the configuration by the strategy.
type ExecutionRequest struct {
	ScheduleID    uint
	ExecutionID   uint
	Configuration json.RawMessage
	Parameters    map[string]string
}

type JobResult struct {
	Success  bool   `json:"success"`
	ExitCode int32  `json:"exit_code"`
	Output   string `json:"output"`
}

// JobExecutionStrategy defines the interface for different job execution strategies.
//
// Execute must honour ctx cancellation. A returned error carries the failure
// message; configuration problems are marked errors.ErrScheduleConfiguration
// and everything else errors.ErrExecutorFailure. Jobs may run more than once
// for the same fire (retries), so the work they trigger must be safe to repeat.
type JobExecutionStrategy interface {
	Execute(ctx context.Context, req ExecutionRequest) (JobResult, error)
	Validate(configuration json.RawMessage) error
	GetType() model.JobType
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute replaces {Name} with params["Name"]. Unknown names are kept.
func Substitute(s string, params map[string]string) string {
	if len(params) == 0 || s == "" {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		if v, ok := params[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Placeholders lists the distinct placeholder names in s, in order of appearance.
func Placeholders(s string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func configError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), errors.ErrScheduleConfiguration)
}

func executorError(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.Mark(errors.Newf(format, args...), errors.ErrExecutorFailure)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), errors.ErrExecutorFailure)
}

func decodeConfig(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return configError("job configuration is empty")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Mark(errors.Wrap(err, "decode job configuration"), errors.ErrScheduleConfiguration)
	}
	return nil
}
