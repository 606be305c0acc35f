package strategy

import (
	"context"
	"encoding/json"
	"runtime"
	"testing"
	"time"

	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processConfig(t *testing.T, cfg ProcessConfig) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return raw
}

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process tests use a POSIX shell")
	}
}

func TestProcessStrategy_Success(t *testing.T) {
	skipOnWindows(t)
	s := NewProcessStrategy(logger.NewNop(), 1024)

	res, err := s.Execute(context.Background(), ExecutionRequest{
		Configuration: processConfig(t, ProcessConfig{
			Executable:  "sh",
			Arguments:   `-c "echo $GREETING {Name}; echo warn 1>&2"`,
			Environment: map[string]string{"GREETING": "hello"},
		}),
		Parameters: map[string]string{"Name": "ledger"},
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(0), res.ExitCode)
	assert.Contains(t, res.Output, "hello ledger")
	assert.Contains(t, res.Output, "[stderr]\nwarn")
}

func TestProcessStrategy_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	s := NewProcessStrategy(logger.NewNop(), 1024)

	res, err := s.Execute(context.Background(), ExecutionRequest{
		Configuration: processConfig(t, ProcessConfig{Executable: "sh", Arguments: `-c "exit 3"`}),
	})

	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int32(3), res.ExitCode)
	assert.Equal(t, "ExecutorFailure", errors.Tag(err))
}

func TestProcessStrategy_KilledOnTimeout(t *testing.T) {
	skipOnWindows(t)
	s := NewProcessStrategy(logger.NewNop(), 1024)

	ctx, cancel := context.WithTimeoutCause(context.Background(), 200*time.Millisecond, errors.ErrTimeoutExceeded)
	defer cancel()

	start := time.Now()
	res, err := s.Execute(ctx, ExecutionRequest{
		Configuration: processConfig(t, ProcessConfig{Executable: "sleep", Arguments: "30"}),
	})

	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, int32(JOB_EXIT_CODE_KILLED), res.ExitCode)
	assert.True(t, errors.Is(err, errors.ErrTimeoutExceeded))
	assert.Equal(t, "TimeoutExceeded", errors.Tag(err))
}

func TestProcessStrategy_Validate(t *testing.T) {
	s := NewProcessStrategy(logger.NewNop(), 1024)

	err := s.Validate(json.RawMessage(`{"arguments":"x"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))

	err = s.Validate(json.RawMessage(`{"executable":"sh","arguments":"-c \"unterminated"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))

	err = s.Validate(json.RawMessage(`not json`))
	assert.True(t, errors.Is(err, errors.ErrScheduleConfiguration))
}

func TestBoundedBuffer(t *testing.T) {
	b := newBoundedBuffer(5)
	n, err := b.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	_, _ = b.Write([]byte("more"))
	assert.Equal(t, "abcde...(truncated)", b.String())
}
