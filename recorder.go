package screenrecorder

import (
	"context"
)

// Recorder records the screen and the system audio into an MPEG-4 file.
//
// At most one recording is active at a time.
type Recorder interface {
	// Start begins a recording. It returns ErrSessionActive (without any
	// side effects) if a recording is already in progress.
	Start(context.Context, StartRequest) error

	// Stop requests the active recording to finish. It is a no-op if
	// nothing is being recorded.
	Stop(context.Context)

	IsRecording() bool
	WaitForRecordingEnd(context.Context) error
	GetStats(context.Context) (*Stats, error)
}

type Stats struct {
	VideoSamplesWritten    uint64 `json:"video_samples_written" yaml:"video_samples_written"`
	AudioSamplesWritten    uint64 `json:"audio_samples_written" yaml:"audio_samples_written"`
	AudioSamplesDropped    uint64 `json:"audio_samples_dropped" yaml:"audio_samples_dropped"`
	VideoIterationsSkipped uint64 `json:"video_iterations_skipped" yaml:"video_iterations_skipped"`
	BytesWritten           uint64 `json:"bytes_written" yaml:"bytes_written"`
}
