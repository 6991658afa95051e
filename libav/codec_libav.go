//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder/internal"
)

type Codec struct {
	codec                 *astiav.Codec
	codecContext          *astiav.CodecContext
	hardwareDeviceContext *astiav.HardwareDeviceContext
	closer                astikit.Closer
}

func (c *Codec) Codec() *astiav.Codec {
	return c.codec
}

func (c *Codec) CodecContext() *astiav.CodecContext {
	return c.codecContext
}

func (c *Codec) Close() error {
	return c.closer.Close()
}

type codecParams struct {
	EncoderName        string
	CodecID            astiav.CodecID
	HardwareDeviceType astiav.HardwareDeviceType
	HardwareDeviceName HardwareDeviceName
	Options            DictionaryItems
}

// findEncoder looks up the encoder by name and falls back to the default
// encoder of the codec ID.
func findEncoder(
	ctx context.Context,
	encoderName string,
	codecID astiav.CodecID,
) *astiav.Codec {
	if encoderName != "" {
		if codec := astiav.FindEncoderByName(encoderName); codec != nil {
			return codec
		}
		logger.Warnf(ctx, "encoder '%s' is not available, falling back to the default encoder of %v", encoderName, codecID)
	}
	return astiav.FindEncoder(codecID)
}

// newEncoderCodec allocates an encoder context, lets configure set it up
// and opens it.
func newEncoderCodec(
	ctx context.Context,
	params codecParams,
	configure func(*astiav.Codec, *astiav.CodecContext) error,
) (_ret *Codec, _err error) {
	c := &Codec{}
	defer func() {
		if _err != nil {
			_ = c.Close()
		}
	}()

	c.codec = findEncoder(ctx, params.EncoderName, params.CodecID)
	if c.codec == nil {
		return nil, fmt.Errorf("unable to find an encoder using name '%s' or codec ID %v", params.EncoderName, params.CodecID)
	}
	logger.Debugf(ctx, "using encoder '%s'", c.codec.Name())

	c.codecContext = astiav.AllocCodecContext(c.codec)
	if c.codecContext == nil {
		return nil, fmt.Errorf("unable to allocate codec context")
	}
	c.closer.Add(c.codecContext.Free)

	if err := configure(c.codec, c.codecContext); err != nil {
		return nil, fmt.Errorf("unable to configure the codec context: %w", err)
	}

	options := newDictionary(ctx, params.Options)

	if params.HardwareDeviceType != astiav.HardwareDeviceTypeNone {
		if c.codecContext.MediaType() != astiav.MediaTypeVideo {
			return nil, fmt.Errorf("currently hardware encoding is supported only for video streams")
		}

		var err error
		c.hardwareDeviceContext, err = astiav.CreateHardwareDeviceContext(
			params.HardwareDeviceType,
			string(params.HardwareDeviceName),
			options,
			0,
		)
		if err != nil {
			return nil, fmt.Errorf("unable to create hardware device context: %w", err)
		}
		c.closer.Add(c.hardwareDeviceContext.Free)

		c.codecContext.SetHardwareDeviceContext(c.hardwareDeviceContext)
	}

	if err := c.codecContext.Open(c.codec, options); err != nil {
		return nil, fmt.Errorf("unable to open codec context: %w", err)
	}

	return c, nil
}

// newDecoderCodec opens a decoder for a demuxed stream.
func newDecoderCodec(
	ctx context.Context,
	codecParameters *astiav.CodecParameters,
) (_ret *Codec, _err error) {
	c := &Codec{}
	defer func() {
		if _err != nil {
			_ = c.Close()
		}
	}()

	c.codec = astiav.FindDecoder(codecParameters.CodecID())
	if c.codec == nil {
		return nil, fmt.Errorf("unable to find a decoder for codec ID %v", codecParameters.CodecID())
	}

	c.codecContext = astiav.AllocCodecContext(c.codec)
	if c.codecContext == nil {
		return nil, fmt.Errorf("unable to allocate codec context")
	}
	c.closer.Add(c.codecContext.Free)

	if err := codecParameters.ToCodecContext(c.codecContext); err != nil {
		return nil, fmt.Errorf("codecParameters.ToCodecContext(...) returned error: %w", err)
	}

	if frameRate := codecParameters.FrameRate(); frameRate.Num() != 0 {
		c.codecContext.SetFramerate(frameRate)
	}

	if err := c.codecContext.Open(c.codec, nil); err != nil {
		return nil, fmt.Errorf("unable to open codec context: %w", err)
	}

	logger.Debugf(ctx, "opened decoder '%s'", c.codec.Name())
	return c, nil
}

func newDictionary(
	ctx context.Context,
	items DictionaryItems,
) *astiav.Dictionary {
	if len(items) == 0 {
		return nil
	}

	dict := astiav.NewDictionary()
	internal.SetFinalizerFree(ctx, dict)
	for _, opt := range items {
		logger.Debugf(ctx, "dictionary['%s'] = '%s'", opt.Key, opt.Value)
		dict.Set(opt.Key, opt.Value, 0)
	}
	return dict
}

func hardwareDeviceType(typeName HardwareDeviceTypeName) astiav.HardwareDeviceType {
	if typeName == "" {
		return astiav.HardwareDeviceTypeNone
	}
	return astiav.FindHardwareDeviceTypeByName(string(typeName))
}
