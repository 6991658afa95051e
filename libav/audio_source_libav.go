//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
)

// AudioSource reads raw 16-bit PCM from a libavdevice demuxer.
type AudioSource struct {
	*astikit.Closer
	*astiav.FormatContext
	ctx         context.Context
	inputFormat *astiav.InputFormat
	url         string
	options     DictionaryItems
	streamIndex int
	packet      *astiav.Packet
	pending     []byte
	stopped     atomic.Bool
}

var _ pipeline.AudioSource = (*AudioSource)(nil)

func (b *Backend) NewAudioSource(
	ctx context.Context,
	token screenrecorder.CaptureToken,
	sampleRate, channels uint,
) (pipeline.AudioSource, error) {
	inputFormat := astiav.FindInputFormat(b.Config.AudioInputFormat)
	if inputFormat == nil {
		return nil, fmt.Errorf("input format '%s' is not available", b.Config.AudioInputFormat)
	}

	return &AudioSource{
		Closer:      astikit.NewCloser(),
		ctx:         ctx,
		inputFormat: inputFormat,
		url:         b.Config.AudioURL,
		options: append(DictionaryItems{
			{Key: "sample_rate", Value: strconv.FormatUint(uint64(sampleRate), 10)},
			{Key: "channels", Value: strconv.FormatUint(uint64(channels), 10)},
		}, b.Config.AudioOptions...),
		streamIndex: -1,
	}, nil
}

func (s *AudioSource) StartRecording() (_err error) {
	ctx := s.ctx
	logger.Debugf(ctx, "StartRecording")
	defer func() { logger.Debugf(ctx, "/StartRecording: %v", _err) }()

	if s.FormatContext != nil {
		return pipeline.ErrAlreadyStarted
	}

	s.FormatContext = astiav.AllocFormatContext()
	if s.FormatContext == nil {
		return fmt.Errorf("unable to allocate a format context")
	}
	s.Closer.Add(s.FormatContext.Free)

	if err := s.FormatContext.OpenInput(s.url, s.inputFormat, newDictionary(ctx, s.options)); err != nil {
		return fmt.Errorf("unable to open the audio input '%s': %w", s.url, err)
	}
	s.Closer.Add(s.FormatContext.CloseInput)

	for _, stream := range s.FormatContext.Streams() {
		par := stream.CodecParameters()
		if par.MediaType() != astiav.MediaTypeAudio {
			continue
		}
		if par.CodecID() != astiav.CodecIDPcmS16Le {
			return fmt.Errorf("the audio input produces %v instead of 16-bit little-endian PCM", par.CodecID())
		}
		s.streamIndex = stream.Index()
		break
	}
	if s.streamIndex < 0 {
		return fmt.Errorf("no audio stream in '%s'", s.url)
	}

	s.packet = astiav.AllocPacket()
	s.Closer.Add(s.packet.Free)
	return nil
}

func (s *AudioSource) Read(p []byte) (int, error) {
	if s.stopped.Load() {
		return 0, io.EOF
	}
	if s.FormatContext == nil || s.packet == nil {
		return 0, fmt.Errorf("the audio input is not started")
	}

	for len(s.pending) == 0 {
		if err := s.FormatContext.ReadFrame(s.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("unable to read audio: %w", err)
		}
		if s.packet.StreamIndex() == s.streamIndex {
			s.pending = append(s.pending[:0], s.packet.Data()...)
		}
		s.packet.Unref()
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *AudioSource) Stop() error {
	s.stopped.Store(true)
	return nil
}

func (s *AudioSource) Release() error {
	s.stopped.Store(true)
	return s.Closer.Close()
}
