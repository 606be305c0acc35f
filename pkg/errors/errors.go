// Package errors re-exports github.com/cockroachdb/errors and defines the
// error taxonomy shared by the scheduler and the ADR orchestrator.
//
// Taxonomy errors are sentinel references. Concrete failures keep their own
// message and are marked with a sentinel, so both the original cause and the
// classification survive wrapping:
//
//	err = errors.Mark(errors.Wrap(err, "run procedure"), errors.ErrExecutorFailure)
//	errors.Is(err, errors.ErrExecutorFailure) // true
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	Mark         = crdb.Mark
)

var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllDetails  = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

var (
	ErrScheduleConfiguration        = New("schedule configuration error")
	ErrExecutorFailure              = New("executor failure")
	ErrTimeoutExceeded              = New("timeout exceeded")
	ErrParameterResolutionFailed    = New("parameter resolution failed")
	ErrConcurrencyConflict          = New("disallowed concurrent execution")
	ErrCredentialVerificationFailed = New("credential verification failed")
	ErrOrchestrationAlreadyRunning  = New("orchestration run already in progress")
	ErrExecutionCancelled           = New("execution cancelled")
	ErrNotFound                     = New("not found")
	ErrSystemProtected              = New("system schedule is protected")
	ErrInvalidTransition            = New("invalid status transition")
	ErrValidation                   = New("validation error")
)

var taxonomy = []struct {
	ref error
	tag string
}{
	{ErrExecutionCancelled, "ExecutionCancelled"},
	{ErrTimeoutExceeded, "TimeoutExceeded"},
	{ErrParameterResolutionFailed, "ParameterResolutionFailed"},
	{ErrScheduleConfiguration, "ScheduleConfigurationError"},
	{ErrConcurrencyConflict, "ConcurrencyConflict"},
	{ErrCredentialVerificationFailed, "CredentialVerificationFailed"},
	{ErrOrchestrationAlreadyRunning, "OrchestrationAlreadyRunning"},
	{ErrNotFound, "NotFound"},
	{ErrSystemProtected, "SystemProtected"},
	{ErrInvalidTransition, "InvalidTransition"},
	{ErrValidation, "ValidationError"},
	{ErrExecutorFailure, "ExecutorFailure"},
}

// Tag returns the taxonomy name of err, or "" when err is nil or unclassified.
// More specific classes win over ErrExecutorFailure.
func Tag(err error) string {
	if err == nil {
		return ""
	}
	for _, t := range taxonomy {
		if Is(err, t.ref) {
			return t.tag
		}
	}
	return ""
}

// IsRetryable reports whether the scheduler retry policy applies to err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAny(err, ErrExecutionCancelled, ErrConcurrencyConflict) {
		return false
	}
	// Resolution failures are retried even when the cause was a missing datasource.
	if Is(err, ErrParameterResolutionFailed) {
		return true
	}
	if Is(err, ErrScheduleConfiguration) {
		return false
	}
	return true
}
