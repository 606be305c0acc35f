package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"automation-scheduler/internal/model"
	"automation-scheduler/pkg/errors"
	"automation-scheduler/pkg/logger"

	"github.com/kballard/go-shellquote"
	"github.com/shirou/gopsutil/v3/process"
)

// pipeWaitDelay bounds how long Wait keeps reading pipes inherited by
// grandchildren after the process itself exited.
const pipeWaitDelay = 2 * time.Second

type ProcessConfig struct {
	Executable       string            `json:"executable"`
	Arguments        string            `json:"arguments"`
	WorkingDirectory string            `json:"working_directory"`
	Environment      map[string]string `json:"environment"`
}

type ProcessStrategy struct {
	log       *logger.Logger
	maxOutput int
}

func NewProcessStrategy(log *logger.Logger, maxOutput int) JobExecutionStrategy {
	return &ProcessStrategy{log: log, maxOutput: maxOutput}
}

func (s *ProcessStrategy) GetType() model.JobType {
	return model.JobTypeProcess
}

func (s *ProcessStrategy) Validate(configuration json.RawMessage) error {
	var cfg ProcessConfig
	if err := decodeConfig(configuration, &cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Executable) == "" {
		return configError("process executable is required")
	}
	if _, err := shellquote.Split(cfg.Arguments); err != nil {
		return errors.Mark(errors.Wrap(err, "process arguments"), errors.ErrScheduleConfiguration)
	}
	return nil
}

func (s *ProcessStrategy) Execute(ctx context.Context, req ExecutionRequest) (JobResult, error) {
	if err := s.Validate(req.Configuration); err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, err
	}
	var cfg ProcessConfig
	_ = json.Unmarshal(req.Configuration, &cfg)

	args, err := shellquote.Split(Substitute(cfg.Arguments, req.Parameters))
	if err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, errors.Mark(errors.Wrap(err, "process arguments after substitution"), errors.ErrScheduleConfiguration)
	}

	cmd := exec.Command(Substitute(cfg.Executable, req.Parameters), args...)
	cmd.Dir = Substitute(cfg.WorkingDirectory, req.Parameters)
	cmd.Env = os.Environ()
	for k, v := range cfg.Environment {
		cmd.Env = append(cmd.Env, k+"="+Substitute(v, req.Parameters))
	}
	stdout := newBoundedBuffer(s.maxOutput)
	stderr := newBoundedBuffer(s.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = pipeWaitDelay

	if err := cmd.Start(); err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED}, executorError(err, "start %s", cfg.Executable)
	}

	s.log.DebugContext(ctx, "Process started",
		logger.StringField("executable", cfg.Executable),
		logger.IntField("pid", cmd.Process.Pid),
		logger.UintField("schedule_id", req.ScheduleID),
	)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case waitErr := <-done:
		return s.result(cmd, stdout, stderr, waitErr)
	case <-ctx.Done():
		s.killTree(ctx, cmd)
		<-done
		output := combineOutput(stdout.String(), stderr.String())
		return JobResult{ExitCode: JOB_EXIT_CODE_KILLED, Output: output},
			executorError(context.Cause(ctx), "process %s killed", cfg.Executable)
	}
}

func (s *ProcessStrategy) result(cmd *exec.Cmd, stdout, stderr *boundedBuffer, waitErr error) (JobResult, error) {
	output := combineOutput(stdout.String(), stderr.String())
	exitCode := int32(JOB_EXIT_CODE_FAILED)
	if cmd.ProcessState != nil {
		exitCode = int32(cmd.ProcessState.ExitCode())
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		waitErr = nil
	}
	if waitErr != nil || exitCode != JOB_EXIT_CODE_SUCCESS {
		err := executorError(waitErr, "process exited with code %d", exitCode)
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			err = errors.WithDetail(err, tail)
		}
		return JobResult{ExitCode: exitCode, Output: output}, err
	}
	return JobResult{Success: true, ExitCode: exitCode, Output: output}, nil
}

// killTree kills the descendants of cmd first, then cmd itself.
func (s *ProcessStrategy) killTree(ctx context.Context, cmd *exec.Cmd) {
	if proc, err := process.NewProcess(int32(cmd.Process.Pid)); err == nil {
		killChildren(proc)
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.log.WarnContext(ctx, "Failed to kill process", logger.IntField("pid", cmd.Process.Pid), logger.ErrorField(err))
	}
}

func killChildren(p *process.Process) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		killChildren(child)
		_ = child.Kill()
	}
}

func combineOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return "[stderr]\n" + stderr
	}
	return stdout + "\n[stderr]\n" + stderr
}

// boundedBuffer keeps the first max bytes written and counts the rest.
type boundedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	max     int
	dropped int
}

func newBoundedBuffer(max int) *boundedBuffer {
	if max <= 0 {
		max = 64 * 1024
	}
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.max - b.buf.Len()
	if room <= 0 {
		b.dropped += len(p)
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.dropped += len(p) - room
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dropped > 0 {
		return b.buf.String() + "...(truncated)"
	}
	return b.buf.String()
}
