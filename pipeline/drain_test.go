package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/screenrecorder/clock"
)

type scriptedOutput struct {
	status OutputStatus
	info   BufferInfo
}

// scriptedEncoder replays a fixed sequence of dequeue results.
type scriptedEncoder struct {
	outputs  []scriptedOutput
	released []int
}

var _ Encoder = (*scriptedEncoder)(nil)

func (e *scriptedEncoder) Start() error   { return nil }
func (e *scriptedEncoder) Stop() error    { return nil }
func (e *scriptedEncoder) Release() error { return nil }

func (e *scriptedEncoder) DequeueInputBuffer(time.Duration) (int, error) {
	return -1, ErrNoInputBuffer
}

func (e *scriptedEncoder) InputBuffer(int) ([]byte, error) { return nil, nil }

func (e *scriptedEncoder) QueueInputBuffer(int, int, int64, BufferFlags) error { return nil }

func (e *scriptedEncoder) DequeueOutputBuffer(info *BufferInfo, _ time.Duration) (OutputStatus, int, error) {
	if len(e.outputs) == 0 {
		return OutputStatusTryAgainLater, -1, nil
	}
	o := e.outputs[0]
	e.outputs = e.outputs[1:]
	if o.status != OutputStatusBufferAvailable {
		return o.status, -1, nil
	}
	*info = o.info
	return o.status, 0, nil
}

func (e *scriptedEncoder) OutputBuffer(int) ([]byte, error) { return make([]byte, 16), nil }

func (e *scriptedEncoder) ReleaseOutputBuffer(index int) error {
	e.released = append(e.released, index)
	return nil
}

func (e *scriptedEncoder) OutputFormat() MediaFormat {
	return MediaFormat{Kind: TrackKindAudio}
}

func TestDrainAudioCountsOnlyRealDrops(t *testing.T) {
	ctx := context.Background()
	w := &recordingWriter{}
	muxer := newMuxerGate(w, 0)
	require.NoError(t, muxer.RegisterTrack(ctx, TrackKindVideo, MediaFormat{Kind: TrackKindVideo}))

	audio := &scriptedEncoder{outputs: []scriptedOutput{
		{status: OutputStatusFormatChanged},
		{status: OutputStatusBufferAvailable, info: BufferInfo{Size: 2, Flags: BufferFlagCodecConfig}},
		{status: OutputStatusBufferAvailable, info: BufferInfo{Size: 4, PresentationTimeUs: 5}},
		{status: OutputStatusBufferAvailable, info: BufferInfo{Size: 0, PresentationTimeUs: 5}},
		{status: OutputStatusBufferAvailable, info: BufferInfo{Size: 4, PresentationTimeUs: 5}},
		{status: OutputStatusBufferAvailable, info: BufferInfo{Size: 4, PresentationTimeUs: 9, Flags: BufferFlagEndOfStream}},
	}}
	var stats statistics
	l := newDrainLoop(nil, audio, nil, muxer, clock.New(clock.SystemMonotonic), &stats, time.Millisecond)

	for range 5 {
		eos, err := l.drainAudio(ctx)
		require.NoError(t, err)
		require.False(t, eos)
	}
	eos, err := l.drainAudio(ctx)
	require.NoError(t, err)
	require.True(t, eos)

	require.Equal(t, uint64(2), stats.AudioSamplesWritten.Load())
	require.Equal(t, uint64(1), stats.AudioSamplesDropped.Load())
	require.Equal(t, uint64(8), stats.BytesWritten.Load())
	require.Len(t, audio.released, 5)
}
