// Package controller owns the process-wide recording session.
package controller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

type State int32

const (
	StateIdle = State(iota)
	StateStarting
	StateRecording
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("unexpected_state_%d", int32(s))
}

type session struct {
	pipeline *pipeline.Pipeline
	endedCh  chan struct{}
}

type Controller struct {
	Backend pipeline.Backend
	Config  screenrecorder.Config

	locker    xsync.Mutex
	state     atomic.Int32
	session   *session
	lastStats screenrecorder.Stats
}

var _ screenrecorder.Recorder = (*Controller)(nil)

func New(
	backend pipeline.Backend,
	cfg screenrecorder.Config,
) *Controller {
	return &Controller{
		Backend: backend,
		Config:  cfg,
	}
}

func (c *Controller) setState(ctx context.Context, s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		logger.Infof(ctx, "recording state: %s -> %s", prev, s)
	}
}

// State returns the lifecycle state; a session which faulted but is
// not released yet is reported as stopping.
func (c *Controller) State() State {
	s := State(c.state.Load())
	if s != StateRecording {
		return s
	}
	sess := xsync.DoR1(xsync.WithNoLogging(context.Background(), true), &c.locker, func() *session {
		return c.session
	})
	if sess != nil && !sess.pipeline.IsRunning() {
		return StateStopping
	}
	return s
}

func (c *Controller) IsRecording() bool {
	return c.State() == StateRecording
}

func (c *Controller) Start(
	ctx context.Context,
	req screenrecorder.StartRequest,
) (_err error) {
	logger.Debugf(ctx, "Start(ctx, %#+v)", req)
	defer func() { logger.Debugf(ctx, "/Start(ctx, %#+v): %v", req, _err) }()
	return xsync.DoA2R1(ctx, &c.locker, c.startLocked, ctx, req)
}

func (c *Controller) startLocked(
	ctx context.Context,
	req screenrecorder.StartRequest,
) error {
	if s := State(c.state.Load()); s != StateIdle {
		logger.Warnf(ctx, "a recording is already in progress (state: %s), ignoring the start request", s)
		return screenrecorder.ErrSessionActive
	}
	c.setState(ctx, StateStarting)

	// the recording outlives the request which started it
	ctx = xcontext.DetachDone(ctx)

	p := pipeline.New(c.Backend, c.Config, req)
	if err := p.Start(ctx); err != nil {
		<-p.Done()
		c.setState(ctx, StateIdle)
		return fmt.Errorf("unable to start the recording: %w", err)
	}

	sess := &session{
		pipeline: p,
		endedCh:  make(chan struct{}),
	}
	c.session = sess
	c.setState(ctx, StateRecording)
	observability.Go(ctx, func(ctx context.Context) {
		c.watchSession(ctx, sess)
	})
	return nil
}

func (c *Controller) watchSession(
	ctx context.Context,
	sess *session,
) {
	maxDuration := sess.pipeline.Request.MaxDuration
	logger.Debugf(ctx, "watchSession (max duration: %v)", maxDuration)
	defer logger.Debugf(ctx, "/watchSession")

	t := time.NewTimer(maxDuration)
	defer t.Stop()
	select {
	case <-t.C:
		logger.Infof(ctx, "the max duration %v elapsed, stopping the recording", maxDuration)
		c.locker.Do(ctx, func() {
			c.stopLocked(ctx, sess)
		})
		<-sess.pipeline.Done()
	case <-sess.pipeline.Done():
	}

	if err := sess.pipeline.Err(); err != nil {
		logger.Errorf(ctx, "the recording ended with an error: %v", err)
	}

	c.locker.Do(ctx, func() {
		c.lastStats = *sess.pipeline.GetStats()
		if c.session == sess {
			c.session = nil
			c.setState(ctx, StateIdle)
		}
	})
	close(sess.endedCh)
}

func (c *Controller) Stop(ctx context.Context) {
	logger.Debugf(ctx, "Stop")
	defer logger.Debugf(ctx, "/Stop")
	c.locker.Do(ctx, func() {
		if c.session == nil {
			logger.Debugf(ctx, "nothing is being recorded, ignoring the stop request")
			return
		}
		c.stopLocked(ctx, c.session)
	})
}

func (c *Controller) stopLocked(ctx context.Context, sess *session) {
	if c.session != sess {
		return
	}
	c.setState(ctx, StateStopping)
	sess.pipeline.Stop(ctx)
}

// WaitForRecordingEnd waits until the current recording (if any) is
// finished and all its resources are released. It returns the error
// the recording ended with.
func (c *Controller) WaitForRecordingEnd(ctx context.Context) error {
	sess := xsync.DoR1(ctx, &c.locker, func() *session {
		return c.session
	})
	if sess == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sess.endedCh:
		return sess.pipeline.Err()
	}
}

// GetStats returns the statistics of the current recording, or of the
// last one if nothing is being recorded.
func (c *Controller) GetStats(ctx context.Context) (*screenrecorder.Stats, error) {
	return xsync.DoR2(ctx, &c.locker, func() (*screenrecorder.Stats, error) {
		if c.session != nil {
			return c.session.pipeline.GetStats(), nil
		}
		stats := c.lastStats
		return &stats, nil
	})
}
