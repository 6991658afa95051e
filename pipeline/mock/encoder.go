package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/screenrecorder/pipeline"
)

const (
	inputSlots    = 4
	inputSlotSize = 2048
)

type output struct {
	info pipeline.BufferInfo
	data []byte
}

// Encoder produces an output sample per queued input (audio) or per
// rendered frame (video, see VideoEncoder).
type Encoder struct {
	journal *Journal
	name    string

	locker          sync.Mutex
	notify          chan struct{}
	format          pipeline.MediaFormat
	started         bool
	released        bool
	formatDelay     int
	formatReports   int
	formatReported  int
	emitCodecConfig bool
	ptsFunc         func(n int, inputPTS int64) int64
	eosAfter        int
	outputCount     int
	pending         []output
	inFlight        map[int]output
	nextIndex       int
	queuedPTS       []int64

	inputs     [inputSlots][]byte
	freeInputs chan int
}

var _ pipeline.Encoder = (*Encoder)(nil)

func newEncoder(journal *Journal, name string, format pipeline.MediaFormat) *Encoder {
	e := &Encoder{
		journal:    journal,
		name:       name,
		format:     format,
		notify:     make(chan struct{}, 1),
		inFlight:   map[int]output{},
		freeInputs: make(chan int, inputSlots),
	}
	for i := range e.inputs {
		e.inputs[i] = make([]byte, inputSlotSize)
		e.freeInputs <- i
	}
	return e
}

func (e *Encoder) Start() error {
	e.journal.Record("%s.start", e.name)
	e.locker.Lock()
	defer e.locker.Unlock()
	e.started = true
	return nil
}

func (e *Encoder) Stop() error {
	e.journal.Record("%s.stop", e.name)
	e.locker.Lock()
	defer e.locker.Unlock()
	e.started = false
	return nil
}

func (e *Encoder) Release() error {
	e.journal.Record("%s.release", e.name)
	e.locker.Lock()
	defer e.locker.Unlock()
	e.released = true
	return nil
}

func (e *Encoder) DequeueInputBuffer(timeout time.Duration) (int, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case idx := <-e.freeInputs:
		return idx, nil
	case <-t.C:
		return -1, pipeline.ErrNoInputBuffer
	}
}

func (e *Encoder) InputBuffer(index int) ([]byte, error) {
	if index < 0 || index >= inputSlots {
		return nil, fmt.Errorf("invalid input buffer index %d", index)
	}
	return e.inputs[index], nil
}

func (e *Encoder) QueueInputBuffer(
	index int,
	size int,
	presentationTimeUs int64,
	flags pipeline.BufferFlags,
) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	defer func() { e.freeInputs <- index }()
	if e.released {
		return fmt.Errorf("%s is released", e.name)
	}

	e.queuedPTS = append(e.queuedPTS, presentationTimeUs)
	if e.emitCodecConfig {
		e.emitCodecConfig = false
		e.pushLocked(pipeline.BufferInfo{Size: 2, Flags: pipeline.BufferFlagCodecConfig})
	}
	pts := presentationTimeUs
	if e.ptsFunc != nil {
		pts = e.ptsFunc(e.outputCount, presentationTimeUs)
	}
	e.outputCount++
	if e.outputCount == e.eosAfter {
		flags |= pipeline.BufferFlagEndOfStream
	}
	e.pushLocked(pipeline.BufferInfo{
		Size:               max(size/8, 1),
		PresentationTimeUs: pts,
		Flags:              flags,
	})
	return nil
}

func (e *Encoder) pushLocked(info pipeline.BufferInfo) {
	e.pending = append(e.pending, output{info: info, data: make([]byte, info.Size)})
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Encoder) DequeueOutputBuffer(
	info *pipeline.BufferInfo,
	timeout time.Duration,
) (pipeline.OutputStatus, int, error) {
	deadline := time.Now().Add(timeout)
	for {
		status, idx, ok, err := e.tryDequeueOutput(info)
		if ok {
			return status, idx, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return pipeline.OutputStatusTryAgainLater, -1, nil
		}
		t := time.NewTimer(remaining)
		select {
		case <-e.notify:
		case <-t.C:
		}
		t.Stop()
	}
}

func (e *Encoder) tryDequeueOutput(info *pipeline.BufferInfo) (pipeline.OutputStatus, int, bool, error) {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.released {
		return pipeline.OutputStatusUndefined, -1, true, fmt.Errorf("%s is released", e.name)
	}
	if !e.started {
		return 0, 0, false, nil
	}
	if e.formatReported < e.formatReports {
		if e.formatDelay > 0 {
			e.formatDelay--
			return pipeline.OutputStatusTryAgainLater, -1, true, nil
		}
		if e.formatReported == 0 || len(e.pending) > 0 {
			e.formatReported++
			return pipeline.OutputStatusFormatChanged, -1, true, nil
		}
	}
	if len(e.pending) == 0 {
		return 0, 0, false, nil
	}
	o := e.pending[0]
	e.pending = e.pending[1:]
	idx := e.nextIndex
	e.nextIndex++
	e.inFlight[idx] = o
	*info = o.info
	return pipeline.OutputStatusBufferAvailable, idx, true, nil
}

func (e *Encoder) OutputBuffer(index int) ([]byte, error) {
	e.locker.Lock()
	defer e.locker.Unlock()
	o, ok := e.inFlight[index]
	if !ok {
		return nil, nil
	}
	return o.data, nil
}

func (e *Encoder) ReleaseOutputBuffer(index int) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	if _, ok := e.inFlight[index]; !ok {
		return fmt.Errorf("output buffer %d is not dequeued", index)
	}
	delete(e.inFlight, index)
	return nil
}

func (e *Encoder) OutputFormat() pipeline.MediaFormat {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.format
}

// OutstandingOutputs is the amount of output buffers dequeued but not released.
func (e *Encoder) OutstandingOutputs() int {
	e.locker.Lock()
	defer e.locker.Unlock()
	return len(e.inFlight)
}

// QueuedPTS returns the timestamps the inputs were queued with.
func (e *Encoder) QueuedPTS() []int64 {
	e.locker.Lock()
	defer e.locker.Unlock()
	return append([]int64(nil), e.queuedPTS...)
}

type VideoEncoder struct {
	*Encoder
	caps          pipeline.VideoCapabilities
	configured    pipeline.VideoFormat
	surfaceFaults error
	frames        int
}

var _ pipeline.VideoEncoder = (*VideoEncoder)(nil)

func (e *VideoEncoder) Capabilities() pipeline.VideoCapabilities {
	return e.caps
}

func (e *VideoEncoder) Configure(format pipeline.VideoFormat) error {
	e.journal.Record("video_encoder.configure")
	e.locker.Lock()
	defer e.locker.Unlock()
	e.configured = format
	e.format.Width = format.Width
	e.format.Height = format.Height
	e.format.Bitrate = format.Bitrate
	return nil
}

func (e *VideoEncoder) Configured() pipeline.VideoFormat {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.configured
}

func (e *VideoEncoder) CreateInputSurface() (pipeline.Surface, error) {
	e.journal.Record("surface.new")
	return &Surface{encoder: e, releaseErr: e.surfaceFaults}, nil
}

// renderFrame emulates the display drawing a frame into the surface;
// the raw timestamps are meaningless on purpose.
func (e *VideoEncoder) renderFrame() {
	e.locker.Lock()
	defer e.locker.Unlock()
	if !e.started || e.released {
		return
	}
	var flags pipeline.BufferFlags
	if e.frames%30 == 0 {
		flags |= pipeline.BufferFlagKeyFrame
	}
	e.frames++
	if e.frames == e.eosAfter {
		flags |= pipeline.BufferFlagEndOfStream
	}
	e.pushLocked(pipeline.BufferInfo{
		Size:               1000,
		PresentationTimeUs: int64(-e.frames),
		Flags:              flags,
	})
}

type Surface struct {
	encoder    *VideoEncoder
	releaseErr error
}

func (s *Surface) Release() error {
	s.encoder.journal.Record("surface.release")
	return s.releaseErr
}
