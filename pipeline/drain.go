package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder/clock"
	"github.com/xaionaro-go/screenrecorder/internal"
)

const timestampUnset = -1

// drainLoop moves encoded samples from both encoders into the muxer.
// It is confined to the pipeline routine.
type drainLoop struct {
	state          runStateObserver
	audioEncoder   Encoder
	videoEncoder   Encoder
	muxer          *muxerGate
	clock          *clock.PresentationClock
	stats          *statistics
	dequeueTimeout time.Duration

	lastAudioPtsUs int64
	bufferInfo     BufferInfo
}

func newDrainLoop(
	state runStateObserver,
	audioEncoder, videoEncoder Encoder,
	muxer *muxerGate,
	clk *clock.PresentationClock,
	stats *statistics,
	dequeueTimeout time.Duration,
) *drainLoop {
	return &drainLoop{
		state:          state,
		audioEncoder:   audioEncoder,
		videoEncoder:   videoEncoder,
		muxer:          muxer,
		clock:          clk,
		stats:          stats,
		dequeueTimeout: dequeueTimeout,
		lastAudioPtsUs: timestampUnset,
	}
}

// Run returns when a stop is requested, on a fault or on an end of a stream.
func (l *drainLoop) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "drainLoop.Run")
	defer func() { logger.Debugf(ctx, "/drainLoop.Run: %v", _err) }()

	for l.state.IsRunning() {
		eos, err := l.drainAudio(ctx)
		if err != nil {
			return err
		}
		if eos {
			logger.Infof(ctx, "the audio stream ended")
			return nil
		}

		if l.muxer.HasTrack(TrackKindVideo) && !l.muxer.HasTrack(TrackKindAudio) {
			l.stats.VideoIterationsSkipped.Add(1)
			runtime.Gosched()
			continue
		}

		eos, err = l.drainVideo(ctx)
		if err != nil {
			return err
		}
		if eos {
			logger.Infof(ctx, "the video stream ended")
			return nil
		}
	}
	return nil
}

func (l *drainLoop) drainAudio(ctx context.Context) (bool, error) {
	status, idx, err := l.audioEncoder.DequeueOutputBuffer(&l.bufferInfo, 0)
	if err != nil {
		return false, fmt.Errorf("unable to dequeue an audio output buffer: %w", err)
	}

	switch status {
	case OutputStatusTryAgainLater:
		return false, nil
	case OutputStatusFormatChanged:
		if err := l.muxer.RegisterTrack(ctx, TrackKindAudio, l.audioEncoder.OutputFormat()); err != nil {
			return false, err
		}
		return false, l.muxer.MaybeStart(ctx)
	case OutputStatusBufferAvailable:
	default:
		logger.Warnf(ctx, "unexpected result from the audio encoder: %s", status)
		return false, nil
	}
	internal.Assert(ctx, idx >= 0, idx)

	info := l.bufferInfo
	defer func() {
		if err := l.audioEncoder.ReleaseOutputBuffer(idx); err != nil {
			logger.Errorf(ctx, "unable to release audio output buffer %d: %v", idx, err)
		}
	}()

	data, err := l.audioEncoder.OutputBuffer(idx)
	if err != nil {
		return false, fmt.Errorf("%w: audio buffer %d: %w", ErrOutputBufferUnavailable, idx, err)
	}
	if data == nil {
		return false, fmt.Errorf("%w: audio buffer %d", ErrOutputBufferUnavailable, idx)
	}

	switch {
	case info.Size == 0 || info.Flags.Has(BufferFlagCodecConfig):
	case info.PresentationTimeUs <= l.lastAudioPtsUs:
		logger.Tracef(ctx, "dropping an audio sample with a non-increasing pts %d <= %d", info.PresentationTimeUs, l.lastAudioPtsUs)
		l.stats.AudioSamplesDropped.Add(1)
	case !l.muxer.IsStarted():
		logger.Tracef(ctx, "dropping an audio sample: the muxer is not started, yet")
		l.stats.AudioSamplesDropped.Add(1)
	default:
		if err := l.muxer.WriteSample(TrackKindAudio, sampleData(data, info), info); err != nil {
			return false, err
		}
		l.lastAudioPtsUs = info.PresentationTimeUs
		l.stats.wrote(TrackKindAudio, info.Size)
	}

	return info.Flags.Has(BufferFlagEndOfStream), nil
}

func (l *drainLoop) drainVideo(ctx context.Context) (bool, error) {
	status, idx, err := l.videoEncoder.DequeueOutputBuffer(&l.bufferInfo, l.dequeueTimeout)
	if err != nil {
		return false, fmt.Errorf("unable to dequeue a video output buffer: %w", err)
	}

	switch status {
	case OutputStatusTryAgainLater:
		logger.Tracef(ctx, "no video output within %v", l.dequeueTimeout)
		return false, nil
	case OutputStatusFormatChanged:
		if err := l.muxer.RegisterTrack(ctx, TrackKindVideo, l.videoEncoder.OutputFormat()); err != nil {
			return false, err
		}
		return false, l.muxer.MaybeStart(ctx)
	case OutputStatusBufferAvailable:
	default:
		logger.Warnf(ctx, "unexpected result from the video encoder: %s", status)
		return false, nil
	}
	internal.Assert(ctx, idx >= 0, idx)

	l.bufferInfo.PresentationTimeUs = l.clock.NowUs()
	info := l.bufferInfo
	defer func() {
		if err := l.videoEncoder.ReleaseOutputBuffer(idx); err != nil {
			logger.Errorf(ctx, "unable to release video output buffer %d: %v", idx, err)
		}
	}()

	data, err := l.videoEncoder.OutputBuffer(idx)
	if err != nil {
		return false, fmt.Errorf("%w: video buffer %d: %w", ErrOutputBufferUnavailable, idx, err)
	}
	if data == nil {
		return false, fmt.Errorf("%w: video buffer %d", ErrOutputBufferUnavailable, idx)
	}

	switch {
	case info.Size == 0 || info.Flags.Has(BufferFlagCodecConfig):
	case !l.muxer.IsStarted():
		logger.Warnf(ctx, "dropping a video sample: the muxer is not started, yet")
	default:
		if err := l.muxer.WriteSample(TrackKindVideo, sampleData(data, info), info); err != nil {
			return false, err
		}
		l.stats.wrote(TrackKindVideo, info.Size)
	}

	return info.Flags.Has(BufferFlagEndOfStream), nil
}

func sampleData(data []byte, info BufferInfo) []byte {
	end := min(info.Offset+info.Size, len(data))
	if info.Offset >= end {
		return nil
	}
	return data[info.Offset:end]
}
