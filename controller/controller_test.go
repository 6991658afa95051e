package controller

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/screenrecorder/pipeline/mock"
)

func newTestController() (*Controller, *mock.Backend) {
	b := mock.NewBackend()
	cfg := screenrecorder.DefaultConfig()
	cfg.DequeueTimeout = 20 * time.Millisecond
	cfg.AudioJoinTimeout = 2 * time.Second
	return New(b, cfg), b
}

func newRequest(t *testing.T) screenrecorder.StartRequest {
	return screenrecorder.StartRequest{
		CaptureToken: screenrecorder.NewCaptureToken("token"),
		OutputPath:   filepath.Join(t.TempDir(), "out.mp4"),
		Width:        1080,
		Height:       1920,
	}
}

func waitEnd(t *testing.T, c *Controller) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.WaitForRecordingEnd(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func TestControllerLifecycle(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	require.Equal(t, StateIdle, c.State())
	require.False(t, c.IsRecording())

	require.NoError(t, c.Start(ctx, newRequest(t)))
	require.Equal(t, StateRecording, c.State())
	require.True(t, c.IsRecording())

	require.Eventually(t, func() bool {
		stats, err := c.GetStats(ctx)
		require.NoError(t, err)
		return stats.AudioSamplesWritten > 0 && stats.VideoSamplesWritten > 0
	}, 5*time.Second, time.Millisecond)

	c.Stop(ctx)
	require.False(t, c.IsRecording())
	require.NoError(t, waitEnd(t, c))
	require.Equal(t, StateIdle, c.State())
	require.True(t, b.Writer().IsFinalized())

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	require.NotZero(t, stats.VideoSamplesWritten)
}

func TestControllerStartWhileRecordingIsRejected(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	require.NoError(t, c.Start(ctx, newRequest(t)))

	err := c.Start(ctx, newRequest(t))
	require.ErrorIs(t, err, screenrecorder.ErrSessionActive)
	require.Equal(t, 1, b.Journal.Count("audio_encoder.new"))
	require.True(t, c.IsRecording())

	c.Stop(ctx)
	require.NoError(t, waitEnd(t, c))
}

func TestControllerStopWhileIdle(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	c.Stop(ctx)
	c.Stop(ctx)
	require.Equal(t, StateIdle, c.State())
	require.Empty(t, b.Journal.Events())
	require.NoError(t, c.WaitForRecordingEnd(ctx))
}

func TestControllerMaxDuration(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	req := newRequest(t)
	req.MaxDuration = 100 * time.Millisecond
	require.NoError(t, c.Start(ctx, req))

	require.NoError(t, waitEnd(t, c))
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, 1, b.Journal.Count("muxer.release"))
}

func TestControllerFaultEndsSession(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	require.NoError(t, c.Start(ctx, newRequest(t)))

	b.Display().TriggerStopped()
	require.False(t, c.IsRecording())
	require.ErrorIs(t, waitEnd(t, c), pipeline.ErrDisplayStopped)
	require.Equal(t, StateIdle, c.State())

	// a new session is allowed after the fault
	require.NoError(t, c.Start(ctx, newRequest(t)))
	c.Stop(ctx)
	require.NoError(t, waitEnd(t, c))
}

func TestControllerStartFailure(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	b.Faults.NewContainerWriter = errors.New("read-only file system")

	err := c.Start(ctx, newRequest(t))
	require.ErrorContains(t, err, "read-only file system")
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, 1, b.Journal.Count("audio_encoder.release"))

	b.Faults.NewContainerWriter = nil
	require.NoError(t, c.Start(ctx, newRequest(t)))
	c.Stop(ctx)
	require.NoError(t, waitEnd(t, c))
}

func TestControllerInvalidRequest(t *testing.T) {
	c, _ := newTestController()
	req := newRequest(t)
	req.CaptureToken = screenrecorder.CaptureToken{}
	err := c.Start(context.Background(), req)
	require.ErrorIs(t, err, screenrecorder.ErrInvalidRequest)
	require.Equal(t, StateIdle, c.State())
}

func TestControllerEndOfStreamEndsSession(t *testing.T) {
	ctx := context.Background()
	c, b := newTestController()
	b.Faults.VideoEOSAfter = 20

	require.NoError(t, c.Start(ctx, newRequest(t)))
	require.NoError(t, waitEnd(t, c))
	require.Equal(t, StateIdle, c.State())
	require.False(t, c.IsRecording())

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	require.NotZero(t, stats.VideoSamplesWritten)
}
