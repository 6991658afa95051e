package pipeline

import (
	"sync/atomic"

	"github.com/xaionaro-go/screenrecorder"
)

type statistics struct {
	VideoSamplesWritten    atomic.Uint64
	AudioSamplesWritten    atomic.Uint64
	AudioSamplesDropped    atomic.Uint64
	VideoIterationsSkipped atomic.Uint64
	BytesWritten           atomic.Uint64
}

func (stats *statistics) Convert() screenrecorder.Stats {
	return screenrecorder.Stats{
		VideoSamplesWritten:    stats.VideoSamplesWritten.Load(),
		AudioSamplesWritten:    stats.AudioSamplesWritten.Load(),
		AudioSamplesDropped:    stats.AudioSamplesDropped.Load(),
		VideoIterationsSkipped: stats.VideoIterationsSkipped.Load(),
		BytesWritten:           stats.BytesWritten.Load(),
	}
}

func (stats *statistics) wrote(kind TrackKind, size int) {
	switch kind {
	case TrackKindVideo:
		stats.VideoSamplesWritten.Add(1)
	case TrackKindAudio:
		stats.AudioSamplesWritten.Add(1)
	}
	stats.BytesWritten.Add(uint64(size))
}
