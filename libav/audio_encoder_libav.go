//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/xsync"
)

const (
	audioInputSlots     = 4
	audioInputSlotBytes = 8192
	bytesPerSample      = 2
)

// AudioEncoder encodes 16-bit PCM queued into its input slots.
type AudioEncoder struct {
	*encoderOutput
	format    pipeline.AudioFormat
	freeSlots chan int
	slots     [][]byte
	closer    *astikit.Closer

	// access to the fields below is guarded by encoderOutput.locker
	pending      []byte
	pendingPtsUs int64
	resampler    *astiav.SoftwareResampleContext
	srcFrame     *astiav.Frame
	dstFrame     *astiav.Frame
}

var _ pipeline.Encoder = (*AudioEncoder)(nil)

func channelLayout(channels uint) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	}
	return astiav.ChannelLayout{}, fmt.Errorf("unsupported amount of audio channels: %d", channels)
}

func (b *Backend) NewAudioEncoder(
	ctx context.Context,
	format pipeline.AudioFormat,
) (_ pipeline.Encoder, _err error) {
	logger.Debugf(ctx, "NewAudioEncoder(%s, %d Hz, %d ch)", format.Codec.String(), format.SampleRate, format.Channels)
	defer func() { logger.Debugf(ctx, "/NewAudioEncoder: %v", _err) }()

	layout, err := channelLayout(format.Channels)
	if err != nil {
		return nil, err
	}

	codecID := astiav.CodecIDAac
	if format.Codec == screenrecorder.AudioCodecOpus {
		codecID = astiav.CodecIDOpus
	}
	encoderName := audioEncoder(format.Codec)
	if name, ok := screenrecorder.GetCustomOption[EncoderName](format.CustomOptions); ok {
		encoderName = string(name)
	}

	codec, err := newEncoderCodec(ctx, codecParams{
		EncoderName: encoderName,
		CodecID:     codecID,
		Options:     dictionaryItemsFrom(format.CustomOptions),
	}, func(codec *astiav.Codec, cc *astiav.CodecContext) error {
		cc.SetChannelLayout(layout)
		cc.SetSampleRate(int(format.SampleRate))
		if sfs := codec.SampleFormats(); len(sfs) > 0 {
			cc.SetSampleFormat(sfs[0])
		} else {
			cc.SetSampleFormat(astiav.SampleFormatFltp)
		}
		cc.SetTimeBase(astiav.NewRational(1, int(format.SampleRate)))
		cc.SetBitRate(int64(format.Bitrate))
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
		cc.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open the %s encoder: %w", format.Codec.MimeType(), err)
	}

	e := &AudioEncoder{
		encoderOutput: newEncoderOutput(ctx, pipeline.TrackKindAudio, codec, pipeline.MediaFormat{
			MimeType:   format.Codec.MimeType(),
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Bitrate:    uint64(format.Bitrate),
		}),
		format:    format,
		freeSlots: make(chan int, audioInputSlots),
		closer:    astikit.NewCloser(),
	}
	for idx := range audioInputSlots {
		e.slots = append(e.slots, make([]byte, audioInputSlotBytes))
		e.freeSlots <- idx
	}

	e.resampler = astiav.AllocSoftwareResampleContext()
	if e.resampler == nil {
		_ = codec.Close()
		return nil, fmt.Errorf("unable to allocate a resampler")
	}
	e.closer.Add(e.resampler.Free)
	e.srcFrame = astiav.AllocFrame()
	e.closer.Add(e.srcFrame.Free)
	e.dstFrame = astiav.AllocFrame()
	e.closer.Add(e.dstFrame.Free)

	return e, nil
}

func (e *AudioEncoder) frameSize() int {
	if n := e.codec.CodecContext().FrameSize(); n > 0 {
		return n
	}
	return 1024
}

func (e *AudioEncoder) DequeueInputBuffer(timeout time.Duration) (int, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case idx := <-e.freeSlots:
		return idx, nil
	case <-t.C:
		return -1, pipeline.ErrNoInputBuffer
	}
}

func (e *AudioEncoder) InputBuffer(index int) ([]byte, error) {
	if index < 0 || index >= len(e.slots) {
		return nil, fmt.Errorf("invalid input buffer index %d", index)
	}
	return e.slots[index], nil
}

func (e *AudioEncoder) QueueInputBuffer(
	index int,
	size int,
	presentationTimeUs int64,
	flags pipeline.BufferFlags,
) error {
	if index < 0 || index >= len(e.slots) {
		return fmt.Errorf("invalid input buffer index %d", index)
	}
	defer func() { e.freeSlots <- index }()

	return xsync.DoR1(xsync.WithNoLogging(e.ctx, true), &e.locker, func() error {
		if !e.started || e.stopped {
			return fmt.Errorf("the audio encoder: %w", pipeline.ErrNotRunning)
		}
		if len(e.pending) == 0 {
			e.pendingPtsUs = presentationTimeUs
		}
		e.pending = append(e.pending, e.slots[index][:size]...)

		frameSize := e.frameSize()
		frameBytes := frameSize * int(e.format.Channels) * bytesPerSample
		for len(e.pending) >= frameBytes {
			if err := e.encodeLocked(e.pending[:frameBytes], frameSize); err != nil {
				return err
			}
			e.pending = e.pending[frameBytes:]
			e.pendingPtsUs += int64(frameSize) * 1_000_000 / int64(e.format.SampleRate)
		}
		if len(e.pending) == 0 {
			e.pending = nil
		}

		if flags.Has(pipeline.BufferFlagEndOfStream) {
			return e.sendFrameLocked(nil)
		}
		return nil
	})
}

func (e *AudioEncoder) encodeLocked(pcm []byte, nbSamples int) error {
	cc := e.codec.CodecContext()

	src := e.srcFrame
	src.Unref()
	src.SetSampleFormat(astiav.SampleFormatS16)
	src.SetChannelLayout(cc.ChannelLayout())
	src.SetSampleRate(cc.SampleRate())
	src.SetNbSamples(nbSamples)
	if err := src.AllocBuffer(0); err != nil {
		return fmt.Errorf("unable to allocate the PCM frame: %w", err)
	}
	if err := src.Data().SetBytes(pcm, 0); err != nil {
		return fmt.Errorf("unable to fill the PCM frame: %w", err)
	}

	dst := e.dstFrame
	dst.Unref()
	dst.SetSampleFormat(cc.SampleFormat())
	dst.SetChannelLayout(cc.ChannelLayout())
	dst.SetSampleRate(cc.SampleRate())
	dst.SetNbSamples(nbSamples)
	if err := dst.AllocBuffer(0); err != nil {
		return fmt.Errorf("unable to allocate the encoder frame: %w", err)
	}
	if err := e.resampler.ConvertFrame(src, dst); err != nil {
		return fmt.Errorf("unable to convert the PCM frame: %w", err)
	}
	dst.SetPts(astiav.RescaleQ(e.pendingPtsUs, microsecondTimeBase, cc.TimeBase()))

	return e.sendFrameLocked(dst)
}

func (e *AudioEncoder) Release() error {
	var result *multierror.Error
	if err := e.closer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to free the conversion buffers: %w", err))
	}
	if err := e.encoderOutput.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to release the encoder: %w", err))
	}
	return result.ErrorOrNil()
}
