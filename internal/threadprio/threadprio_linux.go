//go:build linux

package threadprio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// On Linux PRIO_PROCESS with a thread ID affects only that thread.
func setCurrentThreadNiceness(niceness int) (int, error) {
	tid := unix.Gettid()
	// the raw syscall returns 20-nice to avoid negative values
	prev, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return 0, fmt.Errorf("unable to get the priority of thread %d: %w", tid, err)
	}
	prevNiceness := 20 - prev
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, niceness); err != nil {
		return prevNiceness, fmt.Errorf("unable to set the priority of thread %d: %w", tid, err)
	}
	return prevNiceness, nil
}
