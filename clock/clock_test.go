package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	now atomic.Int64
}

func (s *fakeSource) read() time.Duration {
	return time.Duration(s.now.Load())
}

func (s *fakeSource) advance(d time.Duration) {
	s.now.Add(int64(d))
}

func TestPresentationClockAnchorsOnFirstCall(t *testing.T) {
	src := &fakeSource{}
	src.advance(time.Hour)
	c := New(src.read)
	require.False(t, c.IsAnchored())

	require.Equal(t, int64(0), c.NowUs())
	require.True(t, c.IsAnchored())

	src.advance(1500 * time.Microsecond)
	require.Equal(t, int64(1500), c.NowUs())

	src.advance(time.Second)
	require.Equal(t, int64(1_001_500), c.NowUs())
}

func TestPresentationClockConcurrentAnchoring(t *testing.T) {
	src := &fakeSource{}
	c := New(src.read)

	const goroutines = 32
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([][]int64, goroutines)
	)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for range 100 {
				src.advance(time.Microsecond)
				results[i] = append(results[i], c.NowUs())
			}
		}()
	}
	close(start)
	wg.Wait()

	zeroes := 0
	for _, seq := range results {
		for idx, v := range seq {
			require.GreaterOrEqual(t, v, int64(0))
			if idx > 0 {
				require.GreaterOrEqual(t, v, seq[idx-1])
			}
			if v == 0 {
				zeroes++
			}
		}
	}
	require.GreaterOrEqual(t, zeroes, 1)
	require.LessOrEqual(t, c.NowUs(), int64(goroutines*100))
}

func TestSystemMonotonic(t *testing.T) {
	c := New(nil)
	first := c.NowUs()
	time.Sleep(2 * time.Millisecond)
	require.Greater(t, c.NowUs(), first)
}
