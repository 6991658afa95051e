package pipeline

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
)

const virtualDisplayName = "screenrecorder"

// displayStoppedHandler turns an unexpected end of the display into a fault.
type displayStoppedHandler struct {
	ctx   context.Context
	state runStateObserver
}

var _ DisplayCallback = (*displayStoppedHandler)(nil)

func (h *displayStoppedHandler) OnDisplayStopped() {
	if !h.state.IsRunning() {
		logger.Debugf(h.ctx, "the virtual display stopped")
		return
	}
	h.state.fault(h.ctx, ErrDisplayStopped)
}

// setupVideoCapture acquires the video encoder, its input surface and
// the virtual display rendering into it, registering each release on
// the closer right after acquisition.
func (p *Pipeline) setupVideoCapture(
	ctx context.Context,
	closer *astikit.Closer,
) (_ VideoEncoder, _err error) {
	logger.Debugf(ctx, "setupVideoCapture")
	defer func() { logger.Debugf(ctx, "/setupVideoCapture: %v", _err) }()

	cfg := p.Config.Video
	req := p.Request

	encoder, err := p.Backend.NewVideoEncoder(ctx, cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("unable to create a %s encoder: %w", cfg.Codec.MimeType(), err)
	}
	h := &encoderHandle{Encoder: encoder}
	closer.AddWithError(releaseStep(ctx, "video encoder", h.Close))

	caps := encoder.Capabilities()
	width, height := NegotiateVideoSize(caps, req.Width, req.Height, cfg.MaxWidth, cfg.MaxHeight)
	bitrate := VideoBitrate(cfg.BitrateMultiplier, cfg.FrameRate, req.Width, req.Height)
	if cfg.BitrateFromClampedSize {
		bitrate = VideoBitrate(cfg.BitrateMultiplier, cfg.FrameRate, width, height)
	}
	format := VideoFormat{
		Codec:                    cfg.Codec,
		Width:                    width,
		Height:                   height,
		Bitrate:                  bitrate,
		FrameRate:                cfg.FrameRate,
		IFrameInterval:           cfg.IFrameInterval,
		RepeatPreviousFrameAfter: cfg.RepeatPreviousFrameAfter,
		CustomOptions:            cfg.CustomOptions,
	}
	logger.Infof(ctx, "video: requested %dx%d, recording %dx%d, bitrate %.2f Mbps", req.Width, req.Height, width, height, float64(bitrate)/1024/1024)
	logger.Tracef(ctx, "video format: %s", spew.Sdump(format))
	if err := encoder.Configure(format); err != nil {
		return nil, fmt.Errorf("unable to configure the video encoder: %w", err)
	}

	surface, err := encoder.CreateInputSurface()
	if err != nil {
		return nil, fmt.Errorf("unable to create the encoder input surface: %w", err)
	}
	closer.AddWithError(releaseStep(ctx, "encoder input surface", surface.Release))

	if err := encoder.Start(); err != nil {
		return nil, fmt.Errorf("unable to start the video encoder: %w", err)
	}
	h.started = true

	display, err := p.Backend.NewVirtualDisplay(
		ctx,
		req.CaptureToken,
		DisplayConfig{
			Name:       virtualDisplayName,
			Width:      width,
			Height:     height,
			DensityDPI: cfg.DensityDPI,
		},
		surface,
		&displayStoppedHandler{ctx: ctx, state: p},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create the virtual display: %w", err)
	}
	closer.AddWithError(releaseStep(ctx, "virtual display", display.Release))

	return encoder, nil
}
