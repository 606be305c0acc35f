package utils

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"automation-scheduler/pkg/logger"
)

// GoSafe runs fn in a new goroutine and recovers from any panic.
func GoSafe(log *logger.Logger, fn func()) {
	go func() {
		defer RecoverPanic(log)
		fn()
	}()
}

// RecoverPanic must be deferred. It logs the panic with its stack instead of
// letting it crash the process.
func RecoverPanic(log *logger.Logger) {
	if r := recover(); r != nil {
		if log != nil {
			log.Error("Panic recovered",
				logger.StringField("panic", fmt.Sprint(r)),
				logger.StringField("stack", string(debug.Stack())),
			)
		}
	}
}

func ToPointer[T any](value T) *T {
	return &value
}

// Deref returns the pointed value or the zero value.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func ContainsString(slice []string, str string) bool {
	for _, item := range slice {
		if item == str {
			return true
		}
	}
	return false
}

// Truncate caps s at max bytes, marking the cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func ShouldContinue(ctx context.Context, log *logger.Logger) bool {
	select {
	case <-ctx.Done():
		pc, _, _, ok := runtime.Caller(1)
		funcName := "unknown"
		if ok {
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				parts := strings.Split(fn.Name(), "/")
				funcName = parts[len(parts)-1]
			}
		}

		log.Warn("Context cancelled",
			logger.StringField("caller", funcName),
		)
		return false
	default:
		return true
	}
}
