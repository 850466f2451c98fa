package scheduler

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// TransientFault is an unexpected failure inside one task iteration. The task
// logs it, backs off and keeps running.
type TransientFault struct {
	Task  string
	Cause any
	Stack []byte
}

func (f *TransientFault) Error() string {
	return fmt.Sprintf("transient fault in %s: %v", f.Task, f.Cause)
}

// Unwrap exposes the cause when it is an error.
func (f *TransientFault) Unwrap() error {
	if err, ok := f.Cause.(error); ok {
		return err
	}
	return nil
}

// Guard runs fn and converts a panic into a *TransientFault.
func Guard(task string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TransientFault{Task: task, Cause: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// IsTransient reports whether err is a recovered task fault.
func IsTransient(err error) bool {
	var fault *TransientFault
	return errors.As(err, &fault)
}
