package async

import "runtime/debug"

// PanicLogger captures panic reports from background goroutines.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go runs fn in a goroutine guarded by panic recovery. The orchestration
// core uses it for every detached operation (approval resumes, hub fan-out)
// so a panic in background work never takes the process down.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
// Intended for use as a deferred call at goroutine entry.
func Recover(logger PanicLogger, name string) {
	r := recover()
	if r == nil || logger == nil {
		return
	}
	if name == "" {
		name = "unnamed"
	}
	logger.Error("background goroutine %q panicked: %v\n%s", name, r, debug.Stack())
}
