// Package threadprio changes the scheduling priority of the OS thread
// the calling goroutine is locked to.
package threadprio

import (
	"context"
	"runtime"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// LockAndSet locks the calling goroutine to its OS thread and applies
// the niceness to the thread. The returned function restores the
// previous niceness and unlocks the thread.
//
// Failing to change the priority (for example due to the lack of
// privileges) is logged and otherwise ignored.
func LockAndSet(ctx context.Context, niceness int) func() {
	runtime.LockOSThread()
	prev, err := setCurrentThreadNiceness(niceness)
	if err != nil {
		logger.Warnf(ctx, "unable to set the thread niceness to %d: %v", niceness, err)
		return runtime.UnlockOSThread
	}
	logger.Debugf(ctx, "the thread niceness is changed %d -> %d", prev, niceness)
	return func() {
		if _, err := setCurrentThreadNiceness(prev); err != nil {
			logger.Warnf(ctx, "unable to restore the thread niceness to %d: %v", prev, err)
		}
		runtime.UnlockOSThread()
	}
}
