//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/xsync"
)

const (
	videoMinDimension = 16
	videoMaxDimension = 4096
)

// VideoEncoder is fed through its input Surface only.
type VideoEncoder struct {
	*encoderOutput
	ctx        context.Context
	videoCodec screenrecorder.VideoCodec
	format     pipeline.VideoFormat
}

var _ pipeline.VideoEncoder = (*VideoEncoder)(nil)

func (b *Backend) NewVideoEncoder(
	ctx context.Context,
	codec screenrecorder.VideoCodec,
) (pipeline.VideoEncoder, error) {
	switch codec {
	case screenrecorder.VideoCodecH264, screenrecorder.VideoCodecHEVC:
	default:
		return nil, fmt.Errorf("unsupported video codec: %s", codec.String())
	}
	return &VideoEncoder{
		ctx:        ctx,
		videoCodec: codec,
	}, nil
}

func (e *VideoEncoder) Capabilities() pipeline.VideoCapabilities {
	return pipeline.VideoCapabilities{
		Widths:    pipeline.Range{Min: videoMinDimension, Max: videoMaxDimension},
		Heights:   pipeline.Range{Min: videoMinDimension, Max: videoMaxDimension},
		Alignment: 2,
	}
}

func (e *VideoEncoder) Configure(format pipeline.VideoFormat) (_err error) {
	ctx := e.ctx
	logger.Debugf(ctx, "Configure")
	defer func() { logger.Debugf(ctx, "/Configure: %v", _err) }()
	logger.Tracef(ctx, "format: %s", spew.Sdump(format))

	if e.encoderOutput != nil {
		return fmt.Errorf("the video encoder is already configured")
	}

	codecID := astiav.CodecIDH264
	if e.videoCodec == screenrecorder.VideoCodecHEVC {
		codecID = astiav.CodecIDHevc
	}
	encoderName := optimalVideoEncoder(e.videoCodec)
	if name, ok := screenrecorder.GetCustomOption[EncoderName](format.CustomOptions); ok {
		encoderName = string(name)
	}
	hwType, _ := screenrecorder.GetCustomOption[HardwareDeviceTypeName](format.CustomOptions)
	hwName, _ := screenrecorder.GetCustomOption[HardwareDeviceName](format.CustomOptions)

	frameRate := int(max(format.FrameRate, 1))
	codec, err := newEncoderCodec(ctx, codecParams{
		EncoderName:        encoderName,
		CodecID:            codecID,
		HardwareDeviceType: hardwareDeviceType(hwType),
		HardwareDeviceName: hwName,
		Options:            dictionaryItemsFrom(format.CustomOptions),
	}, func(codec *astiav.Codec, cc *astiav.CodecContext) error {
		cc.SetWidth(int(format.Width))
		cc.SetHeight(int(format.Height))
		pixFmt := astiav.PixelFormatYuv420P
		if pfs := codec.PixelFormats(); len(pfs) > 0 {
			pixFmt = pfs[0]
		}
		cc.SetPixelFormat(pixFmt)
		cc.SetBitRate(int64(format.Bitrate))
		cc.SetFramerate(astiav.NewRational(frameRate, 1))
		cc.SetTimeBase(astiav.NewRational(1, frameRate))
		cc.SetGopSize(int(format.IFrameInterval.Seconds() * float64(frameRate)))
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
		return nil
	})
	if err != nil {
		return fmt.Errorf("unable to open the %s encoder: %w", e.videoCodec.MimeType(), err)
	}

	e.format = format
	e.encoderOutput = newEncoderOutput(ctx, pipeline.TrackKindVideo, codec, pipeline.MediaFormat{
		MimeType: e.videoCodec.MimeType(),
		Width:    format.Width,
		Height:   format.Height,
		Bitrate:  format.Bitrate,
	})
	return nil
}

func (e *VideoEncoder) Start() error {
	if e.encoderOutput == nil {
		return fmt.Errorf("the video encoder is not configured")
	}
	return e.encoderOutput.Start()
}

func (e *VideoEncoder) Stop() error {
	if e.encoderOutput == nil {
		return nil
	}
	return e.encoderOutput.Stop()
}

func (e *VideoEncoder) Release() error {
	if e.encoderOutput == nil {
		return nil
	}
	return e.encoderOutput.Release()
}

func (e *VideoEncoder) DequeueInputBuffer(time.Duration) (int, error) {
	return -1, fmt.Errorf("the video encoder is fed through its input surface")
}

func (e *VideoEncoder) InputBuffer(int) ([]byte, error) {
	return nil, fmt.Errorf("the video encoder is fed through its input surface")
}

func (e *VideoEncoder) QueueInputBuffer(int, int, int64, pipeline.BufferFlags) error {
	return fmt.Errorf("the video encoder is fed through its input surface")
}

func (e *VideoEncoder) CreateInputSurface() (pipeline.Surface, error) {
	if e.encoderOutput == nil {
		return nil, fmt.Errorf("the video encoder is not configured")
	}
	return newSurface(e.ctx, e), nil
}

// encodeFrame submits a frame already in the encoder's size and pixel format.
func (e *VideoEncoder) encodeFrame(frame *astiav.Frame) error {
	return xsync.DoR1(xsync.WithNoLogging(e.ctx, true), &e.locker, func() error {
		if !e.started || e.stopped {
			return nil
		}
		return e.sendFrameLocked(frame)
	})
}
