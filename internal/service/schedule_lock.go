package service

import (
	"context"
	"sync"
)

// runHandle is the live state of one in-flight execution.
type runHandle struct {
	scheduleID  uint
	executionID uint
	cancel      context.CancelCauseFunc
	done        chan struct{}

	mu          sync.Mutex
	cancelledBy string
}

func newRunHandle(scheduleID uint) *runHandle {
	return &runHandle{scheduleID: scheduleID, done: make(chan struct{})}
}

func (h *runHandle) setExecution(id uint, cancel context.CancelCauseFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executionID = id
	h.cancel = cancel
}

func (h *runHandle) ExecutionID() uint {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.executionID
}

// Cancel records by and cancels the run context with cause. Only the first
// call has an effect.
func (h *runHandle) Cancel(by string, cause error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelledBy != "" || h.cancel == nil {
		return false
	}
	h.cancelledBy = by
	h.cancel(cause)
	return true
}

func (h *runHandle) CancelledBy() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelledBy
}

// scheduleLock is the in-process lock table: at most one handle per schedule.
type scheduleLock struct {
	runs sync.Map // uint -> *runHandle
}

// TryAcquire installs h for its schedule. It returns false when another run
// holds the schedule.
func (l *scheduleLock) TryAcquire(h *runHandle) bool {
	_, loaded := l.runs.LoadOrStore(h.scheduleID, h)
	return !loaded
}

// Release removes h only if it is still the holder.
func (l *scheduleLock) Release(h *runHandle) {
	l.runs.CompareAndDelete(h.scheduleID, h)
}

func (l *scheduleLock) Get(scheduleID uint) (*runHandle, bool) {
	v, ok := l.runs.Load(scheduleID)
	if !ok {
		return nil, false
	}
	return v.(*runHandle), true
}

func (l *scheduleLock) FindByExecution(executionID uint) (*runHandle, bool) {
	var found *runHandle
	l.runs.Range(func(_, v any) bool {
		h := v.(*runHandle)
		if h.ExecutionID() == executionID {
			found = h
			return false
		}
		return true
	})
	return found, found != nil
}

func (l *scheduleLock) Len() int {
	n := 0
	l.runs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
