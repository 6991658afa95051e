//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrecorder/pipeline"
)

// Surface converts grabbed frames into the encoder's format and repeats
// the last frame while the screen does not produce new ones.
type Surface struct {
	encoder *VideoEncoder

	locker      sync.Mutex
	scaler      *astiav.SoftwareScaleContext
	srcWidth    int
	srcHeight   int
	srcPixFmt   astiav.PixelFormat
	frame       *astiav.Frame
	hasFrame    bool
	nextPts     int64
	lastFrameAt time.Time
	released    bool

	cancelFn context.CancelFunc
	doneCh   chan struct{}
}

var _ pipeline.Surface = (*Surface)(nil)

func newSurface(ctx context.Context, encoder *VideoEncoder) *Surface {
	ctx, cancelFn := context.WithCancel(ctx)
	s := &Surface{
		encoder:  encoder,
		cancelFn: cancelFn,
		doneCh:   make(chan struct{}),
	}
	if repeatAfter := encoder.format.RepeatPreviousFrameAfter; repeatAfter > 0 {
		observability.Go(ctx, func(ctx context.Context) {
			defer close(s.doneCh)
			s.repeatLoop(ctx, repeatAfter)
		})
	} else {
		close(s.doneCh)
	}
	return s
}

func (s *Surface) repeatLoop(ctx context.Context, repeatAfter time.Duration) {
	t := time.NewTicker(repeatAfter / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if err := s.repeatIfStale(now, repeatAfter); err != nil {
				errmon.ObserveErrorCtx(ctx, err)
			}
		}
	}
}

func (s *Surface) repeatIfStale(now time.Time, repeatAfter time.Duration) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if !s.hasFrame || s.released || now.Sub(s.lastFrameAt) < repeatAfter {
		return nil
	}
	return s.encodeLocked(now)
}

func (s *Surface) ensureScalerLocked(src *astiav.Frame) error {
	if s.scaler != nil && src.Width() == s.srcWidth && src.Height() == s.srcHeight && src.PixelFormat() == s.srcPixFmt {
		return nil
	}
	s.freeLocked()

	cc := s.encoder.encoderOutput.codec.CodecContext()
	scaler, err := astiav.CreateSoftwareScaleContext(
		src.Width(), src.Height(), src.PixelFormat(),
		cc.Width(), cc.Height(), cc.PixelFormat(),
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("unable to create a scaler %dx%d %s -> %dx%d %s: %w",
			src.Width(), src.Height(), src.PixelFormat(), cc.Width(), cc.Height(), cc.PixelFormat(), err)
	}

	frame := astiav.AllocFrame()
	frame.SetWidth(cc.Width())
	frame.SetHeight(cc.Height())
	frame.SetPixelFormat(cc.PixelFormat())
	if err := frame.AllocBuffer(0); err != nil {
		frame.Free()
		scaler.Free()
		return fmt.Errorf("unable to allocate the scaled frame: %w", err)
	}

	s.scaler = scaler
	s.frame = frame
	s.srcWidth, s.srcHeight, s.srcPixFmt = src.Width(), src.Height(), src.PixelFormat()
	logger.Debugf(s.encoder.ctx, "scaler ready: %dx%d %s -> %dx%d %s",
		s.srcWidth, s.srcHeight, s.srcPixFmt, cc.Width(), cc.Height(), cc.PixelFormat())
	return nil
}

// render draws a grabbed frame onto the surface.
func (s *Surface) render(src *astiav.Frame) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.released {
		return nil
	}

	if err := s.ensureScalerLocked(src); err != nil {
		return err
	}
	if err := s.frame.MakeWritable(); err != nil {
		return fmt.Errorf("unable to make the scaled frame writable: %w", err)
	}
	if err := s.scaler.ScaleFrame(src, s.frame); err != nil {
		return fmt.Errorf("unable to scale the frame: %w", err)
	}
	s.hasFrame = true
	return s.encodeLocked(time.Now())
}

func (s *Surface) encodeLocked(now time.Time) error {
	s.frame.SetPts(s.nextPts)
	s.nextPts++
	s.lastFrameAt = now
	return s.encoder.encodeFrame(s.frame)
}

func (s *Surface) freeLocked() {
	if s.frame != nil {
		s.frame.Free()
		s.frame = nil
	}
	if s.scaler != nil {
		s.scaler.Free()
		s.scaler = nil
	}
	s.hasFrame = false
}

func (s *Surface) Release() error {
	s.cancelFn()
	<-s.doneCh

	s.locker.Lock()
	defer s.locker.Unlock()
	s.released = true
	s.freeLocked()
	return nil
}
