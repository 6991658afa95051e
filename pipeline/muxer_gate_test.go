package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	calls   []string
	stopErr error
}

func (w *recordingWriter) AddTrack(f MediaFormat) (int, error) {
	w.calls = append(w.calls, "add_"+f.Kind.String())
	return len(w.calls) - 1, nil
}

func (w *recordingWriter) SetOrientationHint(degrees int) error {
	w.calls = append(w.calls, "orientation")
	return nil
}

func (w *recordingWriter) Start() error {
	w.calls = append(w.calls, "start")
	return nil
}

func (w *recordingWriter) WriteSampleData(trackIndex int, data []byte, info BufferInfo) error {
	w.calls = append(w.calls, "write")
	return nil
}

func (w *recordingWriter) Stop() error {
	w.calls = append(w.calls, "stop")
	return w.stopErr
}

func (w *recordingWriter) Release() error {
	w.calls = append(w.calls, "release")
	return nil
}

func TestMuxerGateStartsOnlyWithBothTracks(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{}
	g := newMuxerGate(w, 90)

	require.ErrorIs(t, g.WriteSample(TrackKindAudio, []byte{1}, BufferInfo{Size: 1}), ErrMuxerNotStarted)

	require.NoError(t, g.RegisterTrack(ctx, TrackKindVideo, MediaFormat{Kind: TrackKindVideo}))
	require.NoError(t, g.MaybeStart(ctx))
	require.False(t, g.IsStarted())

	require.NoError(t, g.RegisterTrack(ctx, TrackKindAudio, MediaFormat{Kind: TrackKindAudio}))
	require.NoError(t, g.MaybeStart(ctx))
	require.True(t, g.IsStarted())
	require.NoError(t, g.MaybeStart(ctx))

	require.NoError(t, g.WriteSample(TrackKindAudio, []byte{1}, BufferInfo{Size: 1}))
	require.NoError(t, g.Close())

	require.Equal(t, []string{"add_video", "add_audio", "orientation", "start", "write", "stop", "release"}, w.calls)
}

func TestMuxerGateRejectsSecondRegistration(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{}
	g := newMuxerGate(w, 0)

	// index 0 is a valid index and must be detected as registered too
	require.NoError(t, g.RegisterTrack(ctx, TrackKindAudio, MediaFormat{Kind: TrackKindAudio}))
	require.Equal(t, 0, g.trackIndex[TrackKindAudio])
	err := g.RegisterTrack(ctx, TrackKindAudio, MediaFormat{Kind: TrackKindAudio})
	require.ErrorIs(t, err, ErrTrackAlreadyRegistered)
	require.Equal(t, []string{"add_audio"}, w.calls)
}

func TestMuxerGateCloseNotStarted(t *testing.T) {
	w := &recordingWriter{stopErr: errors.New("unused")}
	g := newMuxerGate(w, 0)
	require.NoError(t, g.Close())
	require.Equal(t, []string{"release"}, w.calls)
}

func TestMuxerGateCloseReportsStopErrorAndReleases(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{stopErr: errors.New("disk full")}
	g := newMuxerGate(w, 0)
	require.NoError(t, g.RegisterTrack(ctx, TrackKindAudio, MediaFormat{Kind: TrackKindAudio}))
	require.NoError(t, g.RegisterTrack(ctx, TrackKindVideo, MediaFormat{Kind: TrackKindVideo}))
	require.NoError(t, g.MaybeStart(ctx))

	err := g.Close()
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, "release", w.calls[len(w.calls)-1])
}

func TestReleaseStepRecoversPanics(t *testing.T) {
	step := releaseStep(context.Background(), "thing", func() error {
		panic("boom")
	})
	err := step()
	require.ErrorContains(t, err, "boom")
}
