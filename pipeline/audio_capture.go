package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/clock"
	"github.com/xaionaro-go/screenrecorder/internal/threadprio"
)

// runStateObserver is the part of the pipeline the capture paths report to.
type runStateObserver interface {
	IsRunning() bool
	fault(ctx context.Context, err error)
}

// audioCapture moves PCM from the loopback source into the audio
// encoder on its own goroutine. The goroutine owns the source once
// launched and releases it on exit.
type audioCapture struct {
	state          runStateObserver
	source         AudioSource
	encoder        Encoder
	clock          *clock.PresentationClock
	dequeueTimeout time.Duration
	priority       screenrecorder.Priority

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	launched bool
}

func newAudioCapture(
	state runStateObserver,
	source AudioSource,
	encoder Encoder,
	clk *clock.PresentationClock,
	dequeueTimeout time.Duration,
	priority screenrecorder.Priority,
) *audioCapture {
	return &audioCapture{
		state:          state,
		source:         source,
		encoder:        encoder,
		clock:          clk,
		dequeueTimeout: dequeueTimeout,
		priority:       priority,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

func (c *audioCapture) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "audioCapture.Start")
	defer func() { logger.Debugf(ctx, "/audioCapture.Start: %v", _err) }()

	if err := c.source.StartRecording(); err != nil {
		return fmt.Errorf("unable to start recording the audio: %w", err)
	}
	c.launched = true
	observability.Go(ctx, func(ctx context.Context) {
		defer close(c.doneCh)
		defer c.releaseSource(ctx)
		restorePriority := threadprio.LockAndSet(ctx, c.priority.Niceness())
		defer restorePriority()
		c.loop(ctx)
	})
	return nil
}

func (c *audioCapture) loop(ctx context.Context) {
	logger.Debugf(ctx, "audio loop")
	defer logger.Debugf(ctx, "/audio loop")

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		idx, err := c.encoder.DequeueInputBuffer(c.dequeueTimeout)
		if errors.Is(err, ErrNoInputBuffer) {
			logger.Tracef(ctx, "no free audio input buffer within %v, retrying", c.dequeueTimeout)
			continue
		}
		if err != nil {
			c.faultIfRunning(ctx, fmt.Errorf("unable to dequeue an audio input buffer: %w", err))
			return
		}

		buf, err := c.encoder.InputBuffer(idx)
		if err == nil && buf == nil {
			err = fmt.Errorf("buffer %d is nil", idx)
		}
		if err != nil {
			c.faultIfRunning(ctx, fmt.Errorf("the audio input buffer is unavailable: %w", err))
			return
		}

		n, err := c.source.Read(buf)
		if err != nil || n <= 0 {
			if !c.state.IsRunning() {
				logger.Debugf(ctx, "the audio source is drained (n: %d, err: %v)", n, err)
				return
			}
			c.state.fault(ctx, fmt.Errorf("%w: read %d bytes into a %d-byte buffer: %v", ErrShortAudioRead, n, len(buf), err))
			return
		}

		pts := c.clock.NowUs()
		if err := c.encoder.QueueInputBuffer(idx, n, pts, 0); err != nil {
			c.faultIfRunning(ctx, fmt.Errorf("unable to queue an audio input buffer (pts: %d): %w", pts, err))
			return
		}
	}
}

func (c *audioCapture) faultIfRunning(ctx context.Context, err error) {
	if !c.state.IsRunning() {
		logger.Debugf(ctx, "ignoring an audio error while stopping: %v", err)
		return
	}
	c.state.fault(ctx, err)
}

func (c *audioCapture) releaseSource(ctx context.Context) {
	var result *multierror.Error
	if err := c.source.Stop(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to stop the audio source: %w", err))
	}
	if err := c.source.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to release the audio source: %w", err))
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Errorf(ctx, "%v", err)
	}
}

// StopAndJoin signals the goroutine to finish and waits for it at
// most the given time. If the goroutine was never launched the source
// is released here.
func (c *audioCapture) StopAndJoin(ctx context.Context, timeout time.Duration) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if !c.launched {
		c.releaseSource(ctx)
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.doneCh:
		return nil
	case <-t.C:
		logger.Errorf(ctx, "the audio routine did not finish within %v, proceeding without it", timeout)
		return nil
	}
}

// setupAudioCapture acquires the audio encoder and the loopback source
// and launches the sampling routine.
func (p *Pipeline) setupAudioCapture(
	ctx context.Context,
	closer *astikit.Closer,
) (_ Encoder, _err error) {
	logger.Debugf(ctx, "setupAudioCapture")
	defer func() { logger.Debugf(ctx, "/setupAudioCapture: %v", _err) }()

	cfg := p.Config.Audio
	encoder, err := p.Backend.NewAudioEncoder(ctx, AudioFormat{
		Codec:         cfg.Codec,
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		Bitrate:       cfg.Bitrate,
		CustomOptions: cfg.CustomOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create the %s encoder: %w", cfg.Codec.MimeType(), err)
	}
	h := &encoderHandle{Encoder: encoder}
	closer.AddWithError(releaseStep(ctx, "audio encoder", h.Close))

	if err := encoder.Start(); err != nil {
		return nil, fmt.Errorf("unable to start the audio encoder: %w", err)
	}
	h.started = true

	source, err := p.Backend.NewAudioSource(ctx, p.Request.CaptureToken, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("unable to create the audio source: %w", err)
	}
	capture := newAudioCapture(p, source, encoder, p.Clock, p.Config.DequeueTimeout, p.Request.Priority)
	closer.AddWithError(releaseStep(ctx, "audio capture", func() error {
		return capture.StopAndJoin(ctx, p.Config.AudioJoinTimeout)
	}))

	if err := capture.Start(ctx); err != nil {
		return nil, err
	}
	return encoder, nil
}

// encoderHandle stops the encoder only if it was started.
type encoderHandle struct {
	Encoder
	started bool
}

func (h *encoderHandle) Close() error {
	var result *multierror.Error
	if h.started {
		h.started = false
		if err := h.Encoder.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to stop: %w", err))
		}
	}
	if err := h.Encoder.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to release: %w", err))
	}
	return result.ErrorOrNil()
}
