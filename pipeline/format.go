package pipeline

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/screenrecorder"
)

type TrackKind int

const (
	TrackKindVideo = TrackKind(iota)
	TrackKindAudio
)

func (k TrackKind) String() string {
	switch k {
	case TrackKindVideo:
		return "video"
	case TrackKindAudio:
		return "audio"
	}
	return fmt.Sprintf("unknown_track_kind_%d", int(k))
}

type BufferFlags uint

const (
	BufferFlagKeyFrame = BufferFlags(1 << iota)
	BufferFlagCodecConfig
	BufferFlagEndOfStream
)

func (f BufferFlags) Has(flag BufferFlags) bool {
	return f&flag != 0
}

type BufferInfo struct {
	Offset             int
	Size               int
	PresentationTimeUs int64
	Flags              BufferFlags
}

type OutputStatus int

const (
	OutputStatusUndefined = OutputStatus(iota)
	OutputStatusBufferAvailable
	OutputStatusTryAgainLater
	OutputStatusFormatChanged
)

func (s OutputStatus) String() string {
	switch s {
	case OutputStatusUndefined:
		return "<undefined>"
	case OutputStatusBufferAvailable:
		return "buffer_available"
	case OutputStatusTryAgainLater:
		return "try_again_later"
	case OutputStatusFormatChanged:
		return "format_changed"
	}
	return fmt.Sprintf("unexpected_output_status_%d", int(s))
}

// MediaFormat describes an encoded elementary stream.
type MediaFormat struct {
	Kind       TrackKind
	MimeType   string
	Width      uint32
	Height     uint32
	SampleRate uint
	Channels   uint
	Bitrate    uint64

	// Native is the backend-specific description (codec parameters etc).
	Native any
}

type VideoFormat struct {
	Codec                    screenrecorder.VideoCodec
	Width                    uint32
	Height                   uint32
	Bitrate                  uint64
	FrameRate                uint
	IFrameInterval           time.Duration
	RepeatPreviousFrameAfter time.Duration
	CustomOptions            screenrecorder.CustomOptions
}

type AudioFormat struct {
	Codec         screenrecorder.AudioCodec
	SampleRate    uint
	Channels      uint
	Bitrate       uint
	CustomOptions screenrecorder.CustomOptions
}

// Range is an inclusive range of supported values.
type Range struct {
	Min uint32
	Max uint32
}

func (r Range) Clamp(v uint32) uint32 {
	return min(max(v, r.Min), r.Max)
}

type VideoCapabilities struct {
	Widths  Range
	Heights Range

	// Alignment is the required divisor of both dimensions (0 or 1 means any).
	Alignment uint32
}
