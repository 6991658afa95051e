package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/screenrecorder/pipeline"
)

const audioReadInterval = time.Millisecond

type AudioSource struct {
	journal            *Journal
	readsBeforeFailure int

	locker    sync.Mutex
	recording bool
	released  bool
	reads     int
}

var _ pipeline.AudioSource = (*AudioSource)(nil)

func (s *AudioSource) StartRecording() error {
	s.journal.Record("audio_source.start")
	s.locker.Lock()
	defer s.locker.Unlock()
	s.recording = true
	return nil
}

func (s *AudioSource) Read(p []byte) (int, error) {
	time.Sleep(audioReadInterval)
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.released {
		return 0, fmt.Errorf("the audio source is released")
	}
	if !s.recording {
		return 0, nil
	}
	s.reads++
	if s.readsBeforeFailure > 0 && s.reads > s.readsBeforeFailure {
		return 0, nil
	}
	clear(p)
	return len(p), nil
}

func (s *AudioSource) Stop() error {
	s.journal.Record("audio_source.stop")
	s.locker.Lock()
	defer s.locker.Unlock()
	s.recording = false
	return nil
}

func (s *AudioSource) Release() error {
	s.journal.Record("audio_source.release")
	s.locker.Lock()
	defer s.locker.Unlock()
	s.released = true
	return nil
}
