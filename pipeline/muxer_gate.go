package pipeline

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
)

const trackIndexUnset = -1

// muxerGate is the only writer of the container. It holds the samples
// back until both tracks are registered.
//
// It is not safe for concurrent use: it lives in the pipeline routine.
type muxerGate struct {
	writer          ContainerWriter
	orientation     int
	trackIndex      [2]int
	orientationDone bool
	started         bool
}

func newMuxerGate(writer ContainerWriter, orientationDegrees int) *muxerGate {
	return &muxerGate{
		writer:      writer,
		orientation: orientationDegrees,
		trackIndex:  [2]int{trackIndexUnset, trackIndexUnset},
	}
}

func (g *muxerGate) HasTrack(kind TrackKind) bool {
	return g.trackIndex[kind] != trackIndexUnset
}

func (g *muxerGate) IsStarted() bool {
	return g.started
}

func (g *muxerGate) RegisterTrack(
	ctx context.Context,
	kind TrackKind,
	format MediaFormat,
) (_err error) {
	logger.Debugf(ctx, "RegisterTrack(ctx, %s)", kind)
	defer func() { logger.Debugf(ctx, "/RegisterTrack(ctx, %s): %v", kind, _err) }()

	if g.HasTrack(kind) {
		return fmt.Errorf("%w: %s track has index %d", ErrTrackAlreadyRegistered, kind, g.trackIndex[kind])
	}
	logger.Tracef(ctx, "format: %s", spew.Sdump(format))

	idx, err := g.writer.AddTrack(format)
	if err != nil {
		return fmt.Errorf("unable to add the %s track: %w", kind, err)
	}
	g.trackIndex[kind] = idx
	logger.Infof(ctx, "registered the %s track with index %d", kind, idx)
	return nil
}

// MaybeStart starts the writer once both tracks are registered.
func (g *muxerGate) MaybeStart(ctx context.Context) (_err error) {
	if g.started || !g.HasTrack(TrackKindVideo) || !g.HasTrack(TrackKindAudio) {
		return nil
	}
	logger.Debugf(ctx, "MaybeStart")
	defer func() { logger.Debugf(ctx, "/MaybeStart: %v", _err) }()

	if !g.orientationDone {
		if err := g.writer.SetOrientationHint(g.orientation); err != nil {
			return fmt.Errorf("unable to set the orientation hint %d: %w", g.orientation, err)
		}
		g.orientationDone = true
	}
	if err := g.writer.Start(); err != nil {
		return fmt.Errorf("unable to start the muxer: %w", err)
	}
	g.started = true
	logger.Infof(ctx, "the muxer started (orientation: %d)", g.orientation)
	return nil
}

func (g *muxerGate) WriteSample(
	kind TrackKind,
	data []byte,
	info BufferInfo,
) error {
	if !g.started {
		return ErrMuxerNotStarted
	}
	if !g.HasTrack(kind) {
		return fmt.Errorf("the %s track is not registered", kind)
	}
	if err := g.writer.WriteSampleData(g.trackIndex[kind], data, info); err != nil {
		return fmt.Errorf("unable to write a %s sample (pts: %d): %w", kind, info.PresentationTimeUs, err)
	}
	return nil
}

// Close stops the writer if it was started and releases it anyway.
func (g *muxerGate) Close() error {
	var result *multierror.Error
	if g.started {
		g.started = false
		if err := g.writer.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to stop the muxer: %w", err))
		}
	}
	if err := g.writer.Release(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to release the muxer: %w", err))
	}
	return result.ErrorOrNil()
}
