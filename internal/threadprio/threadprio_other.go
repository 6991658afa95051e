//go:build !linux

package threadprio

import (
	"fmt"
	"runtime"
)

func setCurrentThreadNiceness(int) (int, error) {
	return 0, fmt.Errorf("per-thread priorities are not supported on %s", runtime.GOOS)
}
