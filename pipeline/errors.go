package pipeline

import (
	"errors"
)

var (
	ErrNoInputBuffer           = errors.New("no free input buffer")
	ErrTrackAlreadyRegistered  = errors.New("the track is already registered")
	ErrMuxerNotStarted         = errors.New("the muxer is not started")
	ErrDisplayStopped          = errors.New("the virtual display stopped unexpectedly")
	ErrOutputBufferUnavailable = errors.New("the encoder output buffer is unavailable")
	ErrShortAudioRead          = errors.New("the audio source returned no data")
	ErrNotRunning              = errors.New("not running")
	ErrAlreadyStarted          = errors.New("already started")
)
