//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
)

// VirtualDisplay grabs the screen through a libavdevice demuxer and
// renders the decoded frames onto a Surface.
type VirtualDisplay struct {
	*astikit.Closer
	*astiav.FormatContext
	Surface     *Surface
	Callback    pipeline.DisplayCallback
	StreamIndex int
	Decoder     *Codec

	cancelFn context.CancelFunc
	doneCh   chan struct{}
}

var _ pipeline.VirtualDisplay = (*VirtualDisplay)(nil)

func (b *Backend) NewVirtualDisplay(
	ctx context.Context,
	token screenrecorder.CaptureToken,
	cfg pipeline.DisplayConfig,
	surface pipeline.Surface,
	callback pipeline.DisplayCallback,
) (_ pipeline.VirtualDisplay, _err error) {
	logger.Debugf(ctx, "NewVirtualDisplay(%s, %dx%d, %d dpi)", cfg.Name, cfg.Width, cfg.Height, cfg.DensityDPI)
	defer func() { logger.Debugf(ctx, "/NewVirtualDisplay: %v", _err) }()

	s, ok := surface.(*Surface)
	if !ok {
		return nil, fmt.Errorf("the surface of type %T was not created by this backend", surface)
	}

	inputFormat := astiav.FindInputFormat(b.Config.DisplayInputFormat)
	if inputFormat == nil {
		return nil, fmt.Errorf("input format '%s' is not available", b.Config.DisplayInputFormat)
	}

	d := &VirtualDisplay{
		Closer:      astikit.NewCloser(),
		Surface:     s,
		Callback:    callback,
		StreamIndex: -1,
		doneCh:      make(chan struct{}),
	}
	defer func() {
		if _err != nil {
			_ = d.Closer.Close()
		}
	}()

	d.FormatContext = astiav.AllocFormatContext()
	if d.FormatContext == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	d.Closer.Add(d.FormatContext.Free)

	opts := append(DictionaryItems{{
		Key:   "framerate",
		Value: strconv.FormatUint(uint64(max(s.encoder.format.FrameRate, 1)), 10),
	}}, b.Config.DisplayOptions...)
	url := b.Config.DisplayURLFor(token)
	if err := d.FormatContext.OpenInput(url, inputFormat, newDictionary(ctx, opts)); err != nil {
		return nil, fmt.Errorf("unable to open the screen '%s' via '%s': %w", url, b.Config.DisplayInputFormat, err)
	}
	d.Closer.Add(d.FormatContext.CloseInput)

	if err := d.FormatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}

	for _, stream := range d.FormatContext.Streams() {
		if stream.CodecParameters().MediaType() != astiav.MediaTypeVideo {
			continue
		}
		d.StreamIndex = stream.Index()
		decoder, err := newDecoderCodec(ctx, stream.CodecParameters())
		if err != nil {
			return nil, fmt.Errorf("unable to open the decoder of the screen stream: %w", err)
		}
		d.Decoder = decoder
		d.Closer.AddWithError(decoder.Close)
		break
	}
	if d.StreamIndex < 0 {
		return nil, fmt.Errorf("no video stream in '%s'", url)
	}

	ctx, d.cancelFn = context.WithCancel(ctx)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(d.doneCh)
		err := d.grabLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			errmon.ObserveErrorCtx(ctx, err)
		}
		d.Callback.OnDisplayStopped()
	})
	return d, nil
}

func (d *VirtualDisplay) grabLoop(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "grabLoop")
	defer func() { logger.Debugf(ctx, "/grabLoop: %v", _err) }()

	packet := astiav.AllocPacket()
	defer packet.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()

	decoder := d.Decoder.CodecContext()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := d.FormatContext.ReadFrame(packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("unable to read a frame of the screen: %w", err)
		}
		if packet.StreamIndex() != d.StreamIndex {
			packet.Unref()
			continue
		}

		err := decoder.SendPacket(packet)
		packet.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			return fmt.Errorf("unable to decode a frame of the screen: %w", err)
		}

		for {
			err := decoder.ReceiveFrame(frame)
			if err != nil {
				if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
					break
				}
				return fmt.Errorf("unable to receive a decoded frame of the screen: %w", err)
			}
			err = d.Surface.render(frame)
			frame.Unref()
			if err != nil {
				return fmt.Errorf("unable to render onto the encoder surface: %w", err)
			}
		}
	}
}

func (d *VirtualDisplay) Release() error {
	d.cancelFn()
	<-d.doneCh
	return d.Closer.Close()
}
