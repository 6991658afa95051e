package screenrecorder

import (
	"fmt"
	"strings"
)

// Priority is the scheduling priority of the audio sampling thread.
type Priority uint

const (
	PriorityUndefined = Priority(iota)
	PriorityMin
	PriorityNorm
	PriorityMax
	EndOfPriority
)

// PriorityFromLevel converts the 0 (min), 1 (norm), 2 (max) level
// notation. Anything else is PriorityMax.
func PriorityFromLevel(level int) Priority {
	switch level {
	case 0:
		return PriorityMin
	case 1:
		return PriorityNorm
	default:
		return PriorityMax
	}
}

func (p Priority) Level() int {
	switch p {
	case PriorityMin:
		return 0
	case PriorityNorm:
		return 1
	default:
		return 2
	}
}

// Niceness is the unix nice value corresponding to the priority.
func (p Priority) Niceness() int {
	switch p {
	case PriorityMin:
		return 10
	case PriorityNorm:
		return 0
	default:
		return -10
	}
}

func (p *Priority) String() string {
	if p == nil {
		return "null"
	}

	switch *p {
	case PriorityUndefined:
		return "<undefined>"
	case PriorityMin:
		return "min"
	case PriorityNorm:
		return "norm"
	case PriorityMax:
		return "max"
	}
	return fmt.Sprintf("unexpected_priority_%d", uint(*p))
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	if p == nil {
		return fmt.Errorf("Priority is nil")
	}
	s := strings.ToLower(strings.Trim(string(b), `"`))
	for cmp := PriorityUndefined; cmp < EndOfPriority; cmp++ {
		if cmp.String() == s {
			*p = cmp
			return nil
		}
	}
	return fmt.Errorf("unknown value of the Priority: '%s'", s)
}

// Set implements pflag.Value.
func (p *Priority) Set(s string) error {
	return p.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (p *Priority) Type() string {
	return "priority"
}
