package screenrecorder

import (
	"errors"
)

var (
	ErrSessionActive  = errors.New("a recording session is already active")
	ErrInvalidRequest = errors.New("invalid start request")
)
