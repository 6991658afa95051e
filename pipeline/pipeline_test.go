package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrecorder"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/screenrecorder/pipeline/mock"
)

var teardownEvents = []string{
	"muxer.stop",
	"muxer.release",
	"virtual_display.release",
	"surface.release",
	"video_encoder.stop",
	"video_encoder.release",
	"audio_source.stop",
	"audio_source.release",
	"audio_encoder.stop",
	"audio_encoder.release",
}

func testConfig() screenrecorder.Config {
	cfg := screenrecorder.DefaultConfig()
	cfg.DequeueTimeout = 20 * time.Millisecond
	cfg.AudioJoinTimeout = 2 * time.Second
	return cfg
}

func testRequest(t *testing.T) screenrecorder.StartRequest {
	return screenrecorder.StartRequest{
		CaptureToken: screenrecorder.NewCaptureToken("token"),
		OutputPath:   filepath.Join(t.TempDir(), "out.mp4"),
		Width:        2400,
		Height:       1080,
		Rotation:     screenrecorder.Rotation90,
	}
}

func waitForSamples(t *testing.T, b *mock.Backend, count int) {
	require.Eventually(t, func() bool {
		w := b.Writer()
		if w == nil {
			return false
		}
		return len(w.Samples(pipeline.TrackKindAudio)) >= count &&
			len(w.Samples(pipeline.TrackKindVideo)) >= count
	}, 5*time.Second, time.Millisecond)
}

func waitDone(t *testing.T, p *pipeline.Pipeline) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func requireReleasedOnce(t *testing.T, j *mock.Journal) {
	for _, ev := range teardownEvents {
		require.Equal(t, 1, j.Count(ev), ev)
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	req := testRequest(t)
	p := pipeline.New(b, testConfig(), req)

	require.NoError(t, p.Start(ctx))
	require.True(t, p.IsRunning())
	waitForSamples(t, b, 10)

	p.Stop(ctx)
	require.False(t, p.IsRunning())
	require.NoError(t, waitDone(t, p))

	configured := b.VideoEncoder().Configured()
	require.Equal(t, uint32(1080), configured.Width)
	require.Equal(t, uint32(1080), configured.Height)
	require.Equal(t, uint64(19_440_000), configured.Bitrate)
	require.Equal(t, uint(30), configured.FrameRate)
	require.Equal(t, 5*time.Second, configured.IFrameInterval)
	require.Equal(t, time.Second, configured.RepeatPreviousFrameAfter)

	w := b.Writer()
	require.True(t, w.IsFinalized())
	require.Empty(t, w.Violations())
	require.Equal(t, 90, w.Orientation())
	tracks := w.Tracks()
	require.Len(t, tracks, 2)
	require.Equal(t, "audio/mp4a-latm", tracks[0].MimeType)
	require.Equal(t, uint(44100), tracks[0].SampleRate)
	require.Equal(t, uint(1), tracks[0].Channels)
	require.Equal(t, uint64(64000), tracks[0].Bitrate)
	require.Equal(t, "video/avc", tracks[1].MimeType)

	audio := w.Samples(pipeline.TrackKindAudio)
	for i := 1; i < len(audio); i++ {
		require.Greater(t, audio[i].PresentationTimeUs, audio[i-1].PresentationTimeUs)
	}
	video := w.Samples(pipeline.TrackKindVideo)
	for i := range video {
		require.GreaterOrEqual(t, video[i].PresentationTimeUs, int64(0))
		if i > 0 {
			require.GreaterOrEqual(t, video[i].PresentationTimeUs, video[i-1].PresentationTimeUs)
		}
	}

	require.Equal(t, teardownEvents, b.Journal.Filter(teardownEvents...))
	requireReleasedOnce(t, b.Journal)
	require.Zero(t, b.AudioEncoder().OutstandingOutputs())
	require.Zero(t, b.VideoEncoder().OutstandingOutputs())

	content, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(content), "tracks:2 orientation:90\n"), string(content))
	require.True(t, strings.HasSuffix(string(content), "end\n"))

	stats := p.GetStats()
	require.Equal(t, uint64(len(audio)), stats.AudioSamplesWritten)
	require.Equal(t, uint64(len(video)), stats.VideoSamplesWritten)
	require.NotZero(t, stats.BytesWritten)
}

func TestPipelineAudioTimestampsFromSharedClock(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))
	waitForSamples(t, b, 5)
	p.Stop(ctx)
	require.NoError(t, waitDone(t, p))

	queued := b.AudioEncoder().QueuedPTS()
	require.NotEmpty(t, queued)
	for i := range queued {
		require.GreaterOrEqual(t, queued[i], int64(0))
		if i > 0 {
			require.GreaterOrEqual(t, queued[i], queued[i-1])
		}
	}
}

func TestPipelineDisplayStoppedIsFault(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))
	waitForSamples(t, b, 3)

	b.Display().TriggerStopped()
	require.False(t, p.IsRunning())

	err := waitDone(t, p)
	require.ErrorIs(t, err, pipeline.ErrDisplayStopped)
	requireReleasedOnce(t, b.Journal)
	require.True(t, b.Writer().IsFinalized())

	// a stop after the fault changes nothing
	p.Stop(ctx)
	require.ErrorIs(t, p.Err(), pipeline.ErrDisplayStopped)
}

func TestPipelineTeardownContinuesAfterMuxerStopFailure(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.MuxerStop = errors.New("unable to finalize")
	b.Faults.SurfaceRelease = errors.New("surface is gone")
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))
	waitForSamples(t, b, 3)

	p.Stop(ctx)
	require.NoError(t, waitDone(t, p))
	require.Equal(t, teardownEvents, b.Journal.Filter(teardownEvents...))
	requireReleasedOnce(t, b.Journal)
}

func TestPipelineSetupFailureReleasesAcquired(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.NewVirtualDisplay = errors.New("permission revoked")
	p := pipeline.New(b, testConfig(), testRequest(t))

	err := p.Start(ctx)
	require.ErrorContains(t, err, "permission revoked")
	require.ErrorContains(t, waitDone(t, p), "permission revoked")
	require.False(t, p.IsRunning())

	expected := []string{
		"surface.release",
		"video_encoder.stop",
		"video_encoder.release",
		"audio_source.stop",
		"audio_source.release",
		"audio_encoder.stop",
		"audio_encoder.release",
	}
	require.Equal(t, expected, b.Journal.Filter(teardownEvents...))
	require.Nil(t, b.Writer())
}

func TestPipelineVideoEncoderFailure(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.NewVideoEncoder = errors.New("no hardware encoder")
	p := pipeline.New(b, testConfig(), testRequest(t))

	require.Error(t, p.Start(ctx))
	require.Error(t, waitDone(t, p))
	require.Equal(t, []string{
		"audio_source.stop",
		"audio_source.release",
		"audio_encoder.stop",
		"audio_encoder.release",
	}, b.Journal.Filter(teardownEvents...))
}

func TestPipelineDropsNonIncreasingAudioTimestamps(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.AudioPTS = func(n int, pts int64) int64 {
		if n%3 == 2 {
			return 0
		}
		return pts
	}
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))
	waitForSamples(t, b, 10)
	p.Stop(ctx)
	require.NoError(t, waitDone(t, p))

	audio := b.Writer().Samples(pipeline.TrackKindAudio)
	for i := 1; i < len(audio); i++ {
		require.Greater(t, audio[i].PresentationTimeUs, audio[i-1].PresentationTimeUs)
	}
	require.NotZero(t, p.GetStats().AudioSamplesDropped)
}

func TestPipelineVideoWaitsForAudioTrack(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.AudioFormatDelay = 1000
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))
	waitForSamples(t, b, 3)
	p.Stop(ctx)
	require.NoError(t, waitDone(t, p))

	tracks := b.Writer().Tracks()
	require.Len(t, tracks, 2)
	require.Equal(t, pipeline.TrackKindVideo, tracks[0].Kind)
	require.NotZero(t, p.GetStats().VideoIterationsSkipped)
	require.Empty(t, b.Writer().Violations())
}

func TestPipelineSecondAudioFormatChangeIsFault(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.AudioFormatReports = 2
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))

	err := waitDone(t, p)
	require.ErrorIs(t, err, pipeline.ErrTrackAlreadyRegistered)
	requireReleasedOnce(t, b.Journal)
}

func TestPipelineSecondVideoFormatChangeIsFault(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.VideoFormatReports = 2
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))

	err := waitDone(t, p)
	require.ErrorIs(t, err, pipeline.ErrTrackAlreadyRegistered)
	require.False(t, p.IsRunning())
	requireReleasedOnce(t, b.Journal)
}

func TestPipelineEndsOnEndOfStream(t *testing.T) {
	for name, setFaults := range map[string]func(*mock.Faults){
		"video": func(f *mock.Faults) { f.VideoEOSAfter = 20 },
		"audio": func(f *mock.Faults) { f.AudioEOSAfter = 20 },
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := mock.NewBackend()
			setFaults(&b.Faults)
			p := pipeline.New(b, testConfig(), testRequest(t))
			require.NoError(t, p.Start(ctx))

			require.NoError(t, waitDone(t, p))
			require.False(t, p.IsRunning())
			require.NoError(t, p.Err())

			require.Equal(t, teardownEvents, b.Journal.Filter(teardownEvents...))
			requireReleasedOnce(t, b.Journal)
			w := b.Writer()
			require.True(t, w.IsFinalized())
			require.Empty(t, w.Violations())
		})
	}
}

func TestPipelineZeroAudioReadIsFault(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	b.Faults.AudioReadsBeforeFailure = 5
	p := pipeline.New(b, testConfig(), testRequest(t))
	require.NoError(t, p.Start(ctx))

	err := waitDone(t, p)
	require.ErrorIs(t, err, pipeline.ErrShortAudioRead)
	requireReleasedOnce(t, b.Journal)
}

func TestPipelineInvalidRequest(t *testing.T) {
	ctx := context.Background()
	b := mock.NewBackend()
	req := testRequest(t)
	req.OutputPath = filepath.Join(t.TempDir(), "out.avi")
	p := pipeline.New(b, testConfig(), req)

	err := p.Start(ctx)
	require.ErrorIs(t, err, screenrecorder.ErrInvalidRequest)
	require.ErrorIs(t, waitDone(t, p), screenrecorder.ErrInvalidRequest)
	require.Empty(t, b.Journal.Events())
	require.ErrorIs(t, p.Start(ctx), pipeline.ErrAlreadyStarted)
}
