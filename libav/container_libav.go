//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder/internal"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/xsync"
)

type OutputStream struct {
	*astiav.Stream
	Kind    pipeline.TrackKind
	LastDTS int64
}

// ContainerWriter muxes encoded packets into an MP4 file.
type ContainerWriter struct {
	*astikit.Closer
	*astiav.FormatContext
	ctx            context.Context
	path           string
	options        DictionaryItems
	locker         xsync.Mutex
	streams        []*OutputStream
	orientation    int
	headerWritten  bool
	trailerWritten bool
}

var _ pipeline.ContainerWriter = (*ContainerWriter)(nil)

func (b *Backend) NewContainerWriter(
	ctx context.Context,
	path string,
) (_ pipeline.ContainerWriter, _err error) {
	logger.Debugf(ctx, "NewContainerWriter(%s)", path)
	defer func() { logger.Debugf(ctx, "/NewContainerWriter: %v", _err) }()

	w := &ContainerWriter{
		Closer:  astikit.NewCloser(),
		ctx:     ctx,
		path:    path,
		options: b.Config.MuxerOptions,
	}
	defer func() {
		if _err != nil {
			_ = w.Closer.Close()
		}
	}()

	formatContext, err := astiav.AllocOutputFormatContext(nil, "mp4", path)
	if err != nil {
		return nil, fmt.Errorf("allocating output format context failed using path '%s': %w", path, err)
	}
	if formatContext == nil {
		return nil, fmt.Errorf("unable to allocate the output format context")
	}
	w.FormatContext = formatContext
	w.Closer.Add(w.FormatContext.Free)

	ioContext, err := astiav.OpenIOContext(
		path,
		astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
		nil,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open IO context (path: '%s'): %w", path, err)
	}
	w.Closer.Add(func() {
		err := ioContext.Close()
		if err != nil {
			logger.Errorf(ctx, "unable to close the IO context (path: %s): %v", path, err)
		}
	})
	w.FormatContext.SetPb(ioContext)
	return w, nil
}

func (w *ContainerWriter) AddTrack(format pipeline.MediaFormat) (int, error) {
	return xsync.DoR2(w.ctx, &w.locker, func() (int, error) {
		if w.headerWritten {
			return -1, fmt.Errorf("unable to add a track after the muxer has started")
		}

		codecContext, ok := format.Native.(*astiav.CodecContext)
		if !ok {
			return -1, fmt.Errorf("the %s format of type %T was not produced by this backend", format.Kind, format.Native)
		}

		stream := w.FormatContext.NewStream(nil)
		if stream == nil {
			return -1, fmt.Errorf("unable to initialize an output stream")
		}
		if err := codecContext.ToCodecParameters(stream.CodecParameters()); err != nil {
			return -1, fmt.Errorf("unable to copy the codec parameters: %w", err)
		}
		stream.SetTimeBase(codecContext.TimeBase())
		logger.Tracef(w.ctx, "new %s stream: %s", format.Kind, spew.Sdump(stream.CodecParameters()))

		w.streams = append(w.streams, &OutputStream{
			Stream:  stream,
			Kind:    format.Kind,
			LastDTS: math.MinInt64,
		})
		return len(w.streams) - 1, nil
	})
}

func (w *ContainerWriter) SetOrientationHint(degrees int) error {
	switch degrees {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("unsupported orientation: %d", degrees)
	}
	return xsync.DoR1(w.ctx, &w.locker, func() error {
		if w.headerWritten {
			return fmt.Errorf("the orientation must be set before the muxer is started")
		}
		w.orientation = degrees
		return nil
	})
}

func (w *ContainerWriter) Start() error {
	return xsync.DoR1(w.ctx, &w.locker, func() error {
		if w.headerWritten {
			return pipeline.ErrAlreadyStarted
		}

		if w.orientation != 0 {
			for _, stream := range w.streams {
				if stream.Kind != pipeline.TrackKindVideo {
					continue
				}
				metadata := newDictionary(w.ctx, DictionaryItems{{
					Key:   "rotate",
					Value: strconv.Itoa(w.orientation),
				}})
				stream.SetMetadata(metadata)
			}
		}

		if err := w.FormatContext.WriteHeader(newDictionary(w.ctx, w.options)); err != nil {
			return fmt.Errorf("unable to write the header: %w", err)
		}
		w.headerWritten = true
		return nil
	})
}

func (w *ContainerWriter) WriteSampleData(
	trackIndex int,
	data []byte,
	info pipeline.BufferInfo,
) error {
	return xsync.DoR1(xsync.WithNoLogging(w.ctx, true), &w.locker, func() error {
		return w.writeSampleLocked(trackIndex, data, info)
	})
}

func (w *ContainerWriter) writeSampleLocked(
	trackIndex int,
	data []byte,
	info pipeline.BufferInfo,
) (_err error) {
	ctx := w.ctx
	if !w.headerWritten || w.trailerWritten {
		return pipeline.ErrMuxerNotStarted
	}
	if trackIndex < 0 || trackIndex >= len(w.streams) {
		return fmt.Errorf("invalid track index %d", trackIndex)
	}
	outputStream := w.streams[trackIndex]
	internal.Assert(ctx, outputStream != nil)

	payload := data[info.Offset : info.Offset+info.Size]
	ts := astiav.RescaleQ(info.PresentationTimeUs, microsecondTimeBase, outputStream.TimeBase())
	if ts <= outputStream.LastDTS {
		logger.Warnf(ctx, "received a non-increasing DTS, ignoring the packet: %d <= %d", ts, outputStream.LastDTS)
		return nil
	}

	packet := astiav.AllocPacket()
	defer packet.Free()
	if err := packet.FromData(payload); err != nil {
		return fmt.Errorf("unable to fill the packet: %w", err)
	}
	packet.SetStreamIndex(outputStream.Index())
	packet.SetPts(ts)
	packet.SetDts(ts)
	if info.Flags.Has(pipeline.BufferFlagKeyFrame) {
		packet.SetFlags(packet.Flags().Add(astiav.PacketFlagKey))
	}
	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(
			ctx,
			"writing packet (pts:%d) for %s stream %d (time_base: %v) with flags 0x%016X",
			ts, outputStream.Kind, packet.StreamIndex(), outputStream.TimeBase(), packet.Flags(),
		)
	}

	if err := w.FormatContext.WriteInterleavedFrame(packet); err != nil {
		return fmt.Errorf("unable to write the frame: %w", err)
	}
	outputStream.LastDTS = ts
	return nil
}

func (w *ContainerWriter) Stop() error {
	return xsync.DoR1(w.ctx, &w.locker, func() error {
		if !w.headerWritten {
			return pipeline.ErrMuxerNotStarted
		}
		if w.trailerWritten {
			return nil
		}
		w.trailerWritten = true
		if err := w.FormatContext.WriteTrailer(); err != nil {
			return fmt.Errorf("unable to write the trailer of '%s': %w", w.path, err)
		}
		return nil
	})
}

func (w *ContainerWriter) Release() error {
	return w.Closer.Close()
}
