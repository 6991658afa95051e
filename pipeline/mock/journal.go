// Package mock provides an in-memory pipeline.Backend that journals
// every call, for testing the layers above the platform backends.
package mock

import (
	"fmt"
	"slices"
	"sync"
)

type Journal struct {
	locker sync.Mutex
	events []string
}

func (j *Journal) Record(format string, args ...any) {
	j.locker.Lock()
	defer j.locker.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *Journal) Events() []string {
	j.locker.Lock()
	defer j.locker.Unlock()
	return slices.Clone(j.events)
}

func (j *Journal) Count(event string) int {
	j.locker.Lock()
	defer j.locker.Unlock()
	count := 0
	for _, e := range j.events {
		if e == event {
			count++
		}
	}
	return count
}

// Filter returns the events (in order) which are in the given set.
func (j *Journal) Filter(events ...string) []string {
	j.locker.Lock()
	defer j.locker.Unlock()
	var result []string
	for _, e := range j.events {
		if slices.Contains(events, e) {
			result = append(result, e)
		}
	}
	return result
}
