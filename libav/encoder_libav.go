//go:build with_libav
// +build with_libav

package libav

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrecorder/pipeline"
	"github.com/xaionaro-go/xsync"
)

const encodedPacketsQueueSize = 256

var microsecondTimeBase = astiav.NewRational(1, 1_000_000)

// encoderOutput exposes the packets of an astiav encoder through the
// dequeue/release slot API.
type encoderOutput struct {
	ctx     context.Context
	kind    pipeline.TrackKind
	codec   *Codec
	format  pipeline.MediaFormat
	locker  xsync.Mutex
	packets chan *astiav.Packet

	slotsLocker    sync.Mutex
	slots          map[int]*astiav.Packet
	nextSlot       int
	formatReported bool
	started        bool
	stopped        bool
}

func newEncoderOutput(
	ctx context.Context,
	kind pipeline.TrackKind,
	codec *Codec,
	format pipeline.MediaFormat,
) *encoderOutput {
	format.Kind = kind
	format.Native = codec.CodecContext()
	return &encoderOutput{
		ctx:     ctx,
		kind:    kind,
		codec:   codec,
		format:  format,
		packets: make(chan *astiav.Packet, encodedPacketsQueueSize),
		slots:   map[int]*astiav.Packet{},
	}
}

func (e *encoderOutput) Start() error {
	return xsync.DoR1(e.ctx, &e.locker, func() error {
		if e.started {
			return pipeline.ErrAlreadyStarted
		}
		e.started = true
		return nil
	})
}

func (e *encoderOutput) isStarted() bool {
	return xsync.DoR1(xsync.WithNoLogging(e.ctx, true), &e.locker, func() bool {
		return e.started && !e.stopped
	})
}

// Stop flushes the encoder; the flushed packets are not delivered.
func (e *encoderOutput) Stop() error {
	return xsync.DoR1(e.ctx, &e.locker, func() error {
		if !e.started || e.stopped {
			return nil
		}
		e.stopped = true
		if err := e.codec.CodecContext().SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
			return fmt.Errorf("unable to flush the %s encoder: %w", e.kind, err)
		}
		return nil
	})
}

func (e *encoderOutput) Release() error {
	e.slotsLocker.Lock()
	for idx, pkt := range e.slots {
		pkt.Free()
		delete(e.slots, idx)
	}
	e.slotsLocker.Unlock()

	for {
		select {
		case pkt := <-e.packets:
			pkt.Free()
		default:
			return e.codec.Close()
		}
	}
}

// sendFrameLocked encodes the frame and queues the produced packets.
func (e *encoderOutput) sendFrameLocked(frame *astiav.Frame) error {
	if err := e.codec.CodecContext().SendFrame(frame); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("unable to send a frame to the %s encoder: %w", e.kind, err)
	}

	for {
		pkt := astiav.AllocPacket()
		err := e.codec.CodecContext().ReceivePacket(pkt)
		if err != nil {
			pkt.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("unable to receive a packet from the %s encoder: %w", e.kind, err)
		}

		select {
		case e.packets <- pkt:
		default:
			logger.Warnf(e.ctx, "the %s output queue is full, dropping a packet", e.kind)
			pkt.Free()
		}
	}
}

func (e *encoderOutput) DequeueOutputBuffer(
	info *pipeline.BufferInfo,
	timeout time.Duration,
) (pipeline.OutputStatus, int, error) {
	e.slotsLocker.Lock()
	if !e.formatReported {
		e.formatReported = true
		e.slotsLocker.Unlock()
		return pipeline.OutputStatusFormatChanged, -1, nil
	}
	e.slotsLocker.Unlock()

	var pkt *astiav.Packet
	if timeout <= 0 {
		select {
		case pkt = <-e.packets:
		default:
			return pipeline.OutputStatusTryAgainLater, -1, nil
		}
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case pkt = <-e.packets:
		case <-t.C:
			return pipeline.OutputStatusTryAgainLater, -1, nil
		}
	}

	*info = pipeline.BufferInfo{
		Size:               pkt.Size(),
		PresentationTimeUs: astiav.RescaleQ(pkt.Pts(), e.codec.CodecContext().TimeBase(), microsecondTimeBase),
	}
	if pkt.Flags().Has(astiav.PacketFlagKey) {
		info.Flags |= pipeline.BufferFlagKeyFrame
	}

	e.slotsLocker.Lock()
	defer e.slotsLocker.Unlock()
	idx := e.nextSlot
	e.nextSlot++
	e.slots[idx] = pkt
	return pipeline.OutputStatusBufferAvailable, idx, nil
}

func (e *encoderOutput) OutputBuffer(index int) ([]byte, error) {
	e.slotsLocker.Lock()
	defer e.slotsLocker.Unlock()
	pkt, ok := e.slots[index]
	if !ok {
		return nil, nil
	}
	return pkt.Data(), nil
}

func (e *encoderOutput) ReleaseOutputBuffer(index int) error {
	e.slotsLocker.Lock()
	defer e.slotsLocker.Unlock()
	pkt, ok := e.slots[index]
	if !ok {
		return fmt.Errorf("output buffer %d of the %s encoder is not dequeued", index, e.kind)
	}
	delete(e.slots, index)
	pkt.Free()
	return nil
}

func (e *encoderOutput) OutputFormat() pipeline.MediaFormat {
	return e.format
}
