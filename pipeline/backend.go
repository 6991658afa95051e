package pipeline

import (
	"context"
	"time"

	"github.com/xaionaro-go/screenrecorder"
)

// Backend creates the platform resources a recording consists of.
type Backend interface {
	NewAudioEncoder(context.Context, AudioFormat) (Encoder, error)
	NewAudioSource(ctx context.Context, token screenrecorder.CaptureToken, sampleRate, channels uint) (AudioSource, error)
	NewVideoEncoder(context.Context, screenrecorder.VideoCodec) (VideoEncoder, error)
	NewVirtualDisplay(ctx context.Context, token screenrecorder.CaptureToken, cfg DisplayConfig, surface Surface, callback DisplayCallback) (VirtualDisplay, error)
	NewContainerWriter(ctx context.Context, path string) (ContainerWriter, error)
}

// Encoder is a slot-based encoder: input and output buffers are
// addressed by indexes obtained from the Dequeue* methods and must be
// handed back via QueueInputBuffer or ReleaseOutputBuffer.
//
// The input side and the output side may be used from different
// goroutines concurrently.
type Encoder interface {
	Start() error
	Stop() error
	Release() error

	// DequeueInputBuffer returns ErrNoInputBuffer if no slot got free
	// within the timeout.
	DequeueInputBuffer(timeout time.Duration) (int, error)
	InputBuffer(index int) ([]byte, error)
	QueueInputBuffer(index int, size int, presentationTimeUs int64, flags BufferFlags) error

	DequeueOutputBuffer(info *BufferInfo, timeout time.Duration) (OutputStatus, int, error)

	// OutputBuffer returns nil if the buffer is unexpectedly unavailable.
	OutputBuffer(index int) ([]byte, error)
	ReleaseOutputBuffer(index int) error

	// OutputFormat is valid after OutputStatusFormatChanged was reported.
	OutputFormat() MediaFormat
}

type VideoEncoder interface {
	Encoder
	Capabilities() VideoCapabilities
	Configure(VideoFormat) error
	CreateInputSurface() (Surface, error)
}

// Surface is the input of a VideoEncoder a VirtualDisplay renders into.
type Surface interface {
	Release() error
}

type DisplayConfig struct {
	Name       string
	Width      uint32
	Height     uint32
	DensityDPI uint
}

// DisplayCallback receives the events of a VirtualDisplay. It may be
// called from any goroutine.
type DisplayCallback interface {
	OnDisplayStopped()
}

type VirtualDisplay interface {
	Release() error
}

// AudioSource produces 16-bit little-endian PCM.
type AudioSource interface {
	StartRecording() error

	// Read blocks until some data is available; returning less than
	// len(p) bytes is not an error by itself.
	Read(p []byte) (int, error)
	Stop() error
	Release() error
}

type ContainerWriter interface {
	AddTrack(MediaFormat) (int, error)

	// SetOrientationHint must be called before Start.
	SetOrientationHint(degrees int) error
	Start() error
	WriteSampleData(trackIndex int, data []byte, info BufferInfo) error
	Stop() error
	Release() error
}
