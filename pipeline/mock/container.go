package mock

import (
	"fmt"
	"os"
	"sync"

	"github.com/xaionaro-go/screenrecorder/pipeline"
)

type Sample struct {
	Kind               pipeline.TrackKind
	PresentationTimeUs int64
	Size               int
}

// ContainerWriter writes a plain-text description of the muxed
// samples into the output file.
type ContainerWriter struct {
	journal *Journal
	stopErr error

	locker      sync.Mutex
	file        *os.File
	tracks      []pipeline.MediaFormat
	orientation int
	started     bool
	finalized   bool
	samples     []Sample
	violations  []string
}

var _ pipeline.ContainerWriter = (*ContainerWriter)(nil)

func newContainerWriter(journal *Journal, path string, stopErr error) (*ContainerWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create '%s': %w", path, err)
	}
	return &ContainerWriter{
		journal:     journal,
		stopErr:     stopErr,
		file:        f,
		orientation: -1,
	}, nil
}

func (w *ContainerWriter) AddTrack(format pipeline.MediaFormat) (int, error) {
	w.journal.Record("muxer.add_track.%s", format.Kind)
	w.locker.Lock()
	defer w.locker.Unlock()
	if w.started {
		w.violations = append(w.violations, "AddTrack after Start")
		return -1, fmt.Errorf("the muxer is already started")
	}
	w.tracks = append(w.tracks, format)
	return len(w.tracks) - 1, nil
}

func (w *ContainerWriter) SetOrientationHint(degrees int) error {
	w.journal.Record("muxer.set_orientation")
	w.locker.Lock()
	defer w.locker.Unlock()
	if w.started {
		w.violations = append(w.violations, "SetOrientationHint after Start")
		return fmt.Errorf("the muxer is already started")
	}
	w.orientation = degrees
	return nil
}

func (w *ContainerWriter) Start() error {
	w.journal.Record("muxer.start")
	w.locker.Lock()
	defer w.locker.Unlock()
	if w.started {
		w.violations = append(w.violations, "double Start")
		return fmt.Errorf("the muxer is already started")
	}
	w.started = true
	_, err := fmt.Fprintf(w.file, "tracks:%d orientation:%d\n", len(w.tracks), w.orientation)
	return err
}

func (w *ContainerWriter) WriteSampleData(
	trackIndex int,
	data []byte,
	info pipeline.BufferInfo,
) error {
	w.locker.Lock()
	defer w.locker.Unlock()
	if !w.started {
		w.violations = append(w.violations, "WriteSampleData before Start")
		return fmt.Errorf("the muxer is not started")
	}
	if trackIndex < 0 || trackIndex >= len(w.tracks) {
		w.violations = append(w.violations, fmt.Sprintf("WriteSampleData to unknown track %d", trackIndex))
		return fmt.Errorf("unknown track %d", trackIndex)
	}
	kind := w.tracks[trackIndex].Kind
	w.samples = append(w.samples, Sample{
		Kind:               kind,
		PresentationTimeUs: info.PresentationTimeUs,
		Size:               len(data),
	})
	_, err := fmt.Fprintf(w.file, "%s %d %d\n", kind, info.PresentationTimeUs, len(data))
	return err
}

func (w *ContainerWriter) Stop() error {
	w.journal.Record("muxer.stop")
	w.locker.Lock()
	defer w.locker.Unlock()
	if !w.started {
		w.violations = append(w.violations, "Stop before Start")
		return fmt.Errorf("the muxer is not started")
	}
	w.started = false
	if _, err := fmt.Fprintf(w.file, "end\n"); err != nil {
		return err
	}
	w.finalized = true
	return w.stopErr
}

func (w *ContainerWriter) Release() error {
	w.journal.Record("muxer.release")
	w.locker.Lock()
	defer w.locker.Unlock()
	return w.file.Close()
}

func (w *ContainerWriter) Tracks() []pipeline.MediaFormat {
	w.locker.Lock()
	defer w.locker.Unlock()
	return append([]pipeline.MediaFormat(nil), w.tracks...)
}

func (w *ContainerWriter) Orientation() int {
	w.locker.Lock()
	defer w.locker.Unlock()
	return w.orientation
}

func (w *ContainerWriter) IsFinalized() bool {
	w.locker.Lock()
	defer w.locker.Unlock()
	return w.finalized
}

func (w *ContainerWriter) Samples(kind pipeline.TrackKind) []Sample {
	w.locker.Lock()
	defer w.locker.Unlock()
	var result []Sample
	for _, s := range w.samples {
		if s.Kind == kind {
			result = append(result, s)
		}
	}
	return result
}

// Violations lists the calls made in a wrong state.
func (w *ContainerWriter) Violations() []string {
	w.locker.Lock()
	defer w.locker.Unlock()
	return append([]string(nil), w.violations...)
}
