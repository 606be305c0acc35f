package service

import (
	"math"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
)

type RetryDecision struct {
	Retry bool
	// Delay until the retry fires. Zero when Retry is false.
	Delay time.Duration
	// NextRetryCount is the schedule's CurrentRetryCount after this decision.
	NextRetryCount int
}

// RetryPolicy computes exponential backoff: RetryDelayMinutes * 2^CurrentRetryCount,
// capped at MaxBackoff.
type RetryPolicy struct {
	MaxBackoff time.Duration
}

func (p RetryPolicy) Backoff(delayMinutes, retryCount int) time.Duration {
	if delayMinutes <= 0 {
		delayMinutes = 1
	}
	if retryCount < 0 {
		retryCount = 0
	}
	minutes := float64(delayMinutes) * math.Pow(2, float64(retryCount))
	delay := time.Duration(minutes * float64(time.Minute))
	if minutes > float64(math.MaxInt64/int64(time.Minute)) {
		delay = time.Duration(math.MaxInt64)
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Decide reports what happens after an execution of schedule ended with err.
// A nil err, a non-retryable err and an exhausted budget all reset the counter.
func (p RetryPolicy) Decide(schedule model.Schedule, err error) RetryDecision {
	if err == nil || !errors.IsRetryable(err) {
		return RetryDecision{}
	}
	if schedule.CurrentRetryCount >= schedule.MaxRetries {
		return RetryDecision{}
	}
	return RetryDecision{
		Retry:          true,
		Delay:          p.Backoff(schedule.RetryDelayMinutes, schedule.CurrentRetryCount),
		NextRetryCount: schedule.CurrentRetryCount + 1,
	}
}
