package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
)

// Faults configures the failures the backend injects.
type Faults struct {
	NewVideoEncoder    error
	NewVirtualDisplay  error
	NewContainerWriter error
	MuxerStop          error
	SurfaceRelease     error

	// AudioReadsBeforeFailure makes the audio source return zero bytes
	// after the given amount of successful reads (zero means never).
	AudioReadsBeforeFailure int

	// AudioFormatDelay is the amount of audio output dequeues reporting
	// "try again later" before the format is reported.
	AudioFormatDelay int

	// AudioFormatReports is how many times the audio encoder reports
	// a format change (zero means once).
	AudioFormatReports int

	// VideoFormatReports is how many times the video encoder reports
	// a format change (zero means once).
	VideoFormatReports int

	// AudioEOSAfter and VideoEOSAfter flag the n-th data output of the
	// encoder with the end of stream (zero means never).
	AudioEOSAfter int
	VideoEOSAfter int

	// AudioPTS maps the n-th audio output to its presentation timestamp;
	// nil keeps the timestamp of the input.
	AudioPTS func(n int, inputPTS int64) int64
}

type Backend struct {
	Journal       *Journal
	Faults        Faults
	Capabilities  pipeline.VideoCapabilities
	FrameInterval time.Duration

	locker       sync.Mutex
	audioEncoder *Encoder
	videoEncoder *VideoEncoder
	display      *VirtualDisplay
	audioSource  *AudioSource
	writer       *ContainerWriter
}

var _ pipeline.Backend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{
		Journal: &Journal{},
		Capabilities: pipeline.VideoCapabilities{
			Widths:  pipeline.Range{Min: 2, Max: 4096},
			Heights: pipeline.Range{Min: 2, Max: 2160},
		},
		FrameInterval: 2 * time.Millisecond,
	}
}

func (b *Backend) NewAudioEncoder(
	ctx context.Context,
	format pipeline.AudioFormat,
) (pipeline.Encoder, error) {
	b.Journal.Record("audio_encoder.new")
	enc := newEncoder(b.Journal, "audio_encoder", pipeline.MediaFormat{
		Kind:       pipeline.TrackKindAudio,
		MimeType:   format.Codec.MimeType(),
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Bitrate:    uint64(format.Bitrate),
	})
	enc.formatDelay = b.Faults.AudioFormatDelay
	enc.formatReports = max(b.Faults.AudioFormatReports, 1)
	enc.ptsFunc = b.Faults.AudioPTS
	enc.emitCodecConfig = true
	enc.eosAfter = b.Faults.AudioEOSAfter
	b.locker.Lock()
	b.audioEncoder = enc
	b.locker.Unlock()
	return enc, nil
}

func (b *Backend) NewAudioSource(
	ctx context.Context,
	token screenrecorder.CaptureToken,
	sampleRate, channels uint,
) (pipeline.AudioSource, error) {
	b.Journal.Record("audio_source.new")
	src := &AudioSource{
		journal:            b.Journal,
		readsBeforeFailure: b.Faults.AudioReadsBeforeFailure,
	}
	b.locker.Lock()
	b.audioSource = src
	b.locker.Unlock()
	return src, nil
}

func (b *Backend) NewVideoEncoder(
	ctx context.Context,
	codec screenrecorder.VideoCodec,
) (pipeline.VideoEncoder, error) {
	if b.Faults.NewVideoEncoder != nil {
		return nil, b.Faults.NewVideoEncoder
	}
	b.Journal.Record("video_encoder.new")
	enc := &VideoEncoder{
		Encoder: newEncoder(b.Journal, "video_encoder", pipeline.MediaFormat{
			Kind:     pipeline.TrackKindVideo,
			MimeType: codec.MimeType(),
		}),
		caps:          b.Capabilities,
		surfaceFaults: b.Faults.SurfaceRelease,
	}
	enc.formatReports = max(b.Faults.VideoFormatReports, 1)
	enc.eosAfter = b.Faults.VideoEOSAfter
	b.locker.Lock()
	b.videoEncoder = enc
	b.locker.Unlock()
	return enc, nil
}

func (b *Backend) NewVirtualDisplay(
	ctx context.Context,
	token screenrecorder.CaptureToken,
	cfg pipeline.DisplayConfig,
	surface pipeline.Surface,
	callback pipeline.DisplayCallback,
) (pipeline.VirtualDisplay, error) {
	if b.Faults.NewVirtualDisplay != nil {
		return nil, b.Faults.NewVirtualDisplay
	}
	s, ok := surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("unexpected surface type %T", surface)
	}
	b.Journal.Record("virtual_display.new")
	d := newVirtualDisplay(b.Journal, cfg, s, callback, b.FrameInterval)
	b.locker.Lock()
	b.display = d
	b.locker.Unlock()
	return d, nil
}

func (b *Backend) NewContainerWriter(
	ctx context.Context,
	path string,
) (pipeline.ContainerWriter, error) {
	if b.Faults.NewContainerWriter != nil {
		return nil, b.Faults.NewContainerWriter
	}
	w, err := newContainerWriter(b.Journal, path, b.Faults.MuxerStop)
	if err != nil {
		return nil, err
	}
	b.Journal.Record("muxer.new")
	b.locker.Lock()
	b.writer = w
	b.locker.Unlock()
	return w, nil
}

func (b *Backend) AudioEncoder() *Encoder {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.audioEncoder
}

func (b *Backend) VideoEncoder() *VideoEncoder {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.videoEncoder
}

func (b *Backend) Display() *VirtualDisplay {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.display
}

func (b *Backend) AudioSource() *AudioSource {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.audioSource
}

func (b *Backend) Writer() *ContainerWriter {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.writer
}
