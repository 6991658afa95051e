// Package pipeline implements a single recording: capturing a display
// and the audio output, encoding both and muxing them into one file.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/clock"
)

type phase int32

const (
	phaseRunning = phase(iota)
	phaseStopRequested
	phaseFaulted
	phaseEnded
)

func (p phase) String() string {
	switch p {
	case phaseRunning:
		return "running"
	case phaseStopRequested:
		return "stop_requested"
	case phaseFaulted:
		return "faulted"
	case phaseEnded:
		return "ended"
	}
	return fmt.Sprintf("unexpected_phase_%d", int32(p))
}

// Pipeline is a single-use recording.
type Pipeline struct {
	Backend Backend
	Config  screenrecorder.Config
	Request screenrecorder.StartRequest
	Clock   *clock.PresentationClock

	phase     atomic.Int32
	started   atomic.Bool
	faultLock sync.Mutex
	faultErr  error
	stats     statistics
	doneCh    chan struct{}
}

func New(
	backend Backend,
	cfg screenrecorder.Config,
	req screenrecorder.StartRequest,
) *Pipeline {
	return &Pipeline{
		Backend: backend,
		Config:  cfg,
		Request: req.WithDefaults(cfg),
		Clock:   clock.New(clock.SystemMonotonic),
		doneCh:  make(chan struct{}),
	}
}

// Start acquires all the resources and launches the recording. It
// returns when the recording is running, or with the error that
// prevented it (in which case everything acquired is released already).
func (p *Pipeline) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := p.Request.Validate(); err != nil {
		close(p.doneCh)
		p.fault(ctx, err)
		return err
	}
	logger.Tracef(ctx, "config: %s", spew.Sdump(p.Config))

	setupResult := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		defer close(p.doneCh)
		p.run(ctx, setupResult)
	})
	return <-setupResult
}

func (p *Pipeline) run(
	ctx context.Context,
	setupResult chan<- error,
) {
	logger.Debugf(ctx, "run")
	defer logger.Debugf(ctx, "/run")

	closer := astikit.NewCloser()
	defer p.teardown(ctx, closer)

	loop, err := p.setup(ctx, closer)
	if err != nil {
		p.fault(ctx, err)
		setupResult <- err
		return
	}
	logger.Infof(ctx, "recording into '%s'", p.Request.OutputPath)
	setupResult <- nil

	if err := loop.Run(ctx); err != nil {
		p.fault(ctx, err)
		return
	}
	if p.phase.CompareAndSwap(int32(phaseRunning), int32(phaseEnded)) {
		logger.Infof(ctx, "the recording ended by an end of a stream")
	}
}

// setup acquires the resources in the order reverse to the order they
// have to be released in.
func (p *Pipeline) setup(
	ctx context.Context,
	closer *astikit.Closer,
) (_ *drainLoop, _err error) {
	logger.Debugf(ctx, "setup")
	defer func() { logger.Debugf(ctx, "/setup: %v", _err) }()

	audioEncoder, err := p.setupAudioCapture(ctx, closer)
	if err != nil {
		return nil, fmt.Errorf("unable to set up the audio capture: %w", err)
	}

	videoEncoder, err := p.setupVideoCapture(ctx, closer)
	if err != nil {
		return nil, fmt.Errorf("unable to set up the video capture: %w", err)
	}

	writer, err := p.Backend.NewContainerWriter(ctx, p.Request.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("unable to create the muxer for '%s': %w", p.Request.OutputPath, err)
	}
	muxer := newMuxerGate(writer, p.Request.Rotation.Degrees())
	closer.AddWithError(releaseStep(ctx, "muxer", muxer.Close))

	return newDrainLoop(
		p,
		audioEncoder, videoEncoder,
		muxer,
		p.Clock,
		&p.stats,
		p.Config.DequeueTimeout,
	), nil
}

func (p *Pipeline) teardown(
	ctx context.Context,
	closer *astikit.Closer,
) {
	logger.Infof(ctx, "releasing the recording resources (state: %s)", p.getPhase())
	if err := closer.Close(); err != nil {
		logger.Errorf(ctx, "the release finished with errors: %v", err)
	}
	logger.Infof(ctx, "released the recording resources")
}

// releaseStep isolates a release action: its error or panic is logged
// and does not affect the following steps.
func releaseStep(
	ctx context.Context,
	name string,
	fn func() error,
) func() error {
	return func() (_err error) {
		logger.Debugf(ctx, "releasing the %s", name)
		defer func() {
			if r := recover(); r != nil {
				_err = fmt.Errorf("got panic while releasing the %s: %v", name, r)
			}
			if _err != nil {
				logger.Errorf(ctx, "unable to release the %s: %v", name, _err)
				return
			}
			logger.Debugf(ctx, "released the %s", name)
		}()
		if err := fn(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func (p *Pipeline) getPhase() phase {
	return phase(p.phase.Load())
}

func (p *Pipeline) IsRunning() bool {
	return p.getPhase() == phaseRunning
}

// Stop requests the recording to finish; it does not wait.
func (p *Pipeline) Stop(ctx context.Context) {
	if p.phase.CompareAndSwap(int32(phaseRunning), int32(phaseStopRequested)) {
		logger.Infof(ctx, "stop requested")
	}
}

func (p *Pipeline) fault(ctx context.Context, err error) {
	if !p.phase.CompareAndSwap(int32(phaseRunning), int32(phaseFaulted)) {
		logger.Debugf(ctx, "an error after the recording was already stopping: %v", err)
		return
	}
	p.faultLock.Lock()
	p.faultErr = err
	p.faultLock.Unlock()
	logger.Errorf(ctx, "recording fault: %v", err)
}

// Err returns the fault that ended the recording, if any.
func (p *Pipeline) Err() error {
	p.faultLock.Lock()
	defer p.faultLock.Unlock()
	return p.faultErr
}

// Done is closed when all the resources are released.
func (p *Pipeline) Done() <-chan struct{} {
	return p.doneCh
}

// Wait waits until all the resources are released and returns Err.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.doneCh:
		return p.Err()
	}
}

func (p *Pipeline) GetStats() *screenrecorder.Stats {
	stats := p.stats.Convert()
	return &stats
}
