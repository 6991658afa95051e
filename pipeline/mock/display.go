package mock

import (
	"sync"
	"time"

	"github.com/xaionaro-go/screenrecorder/pipeline"
)

type VirtualDisplay struct {
	journal  *Journal
	Config   pipeline.DisplayConfig
	callback pipeline.DisplayCallback

	releaseOnce sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
}

var _ pipeline.VirtualDisplay = (*VirtualDisplay)(nil)

func newVirtualDisplay(
	journal *Journal,
	cfg pipeline.DisplayConfig,
	surface *Surface,
	callback pipeline.DisplayCallback,
	frameInterval time.Duration,
) *VirtualDisplay {
	d := &VirtualDisplay{
		journal:  journal,
		Config:   cfg,
		callback: callback,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go func() {
		defer close(d.doneCh)
		t := time.NewTicker(frameInterval)
		defer t.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-t.C:
				surface.encoder.renderFrame()
			}
		}
	}()
	return d
}

// TriggerStopped emulates the platform revoking the display.
func (d *VirtualDisplay) TriggerStopped() {
	d.journal.Record("virtual_display.stopped")
	d.callback.OnDisplayStopped()
}

func (d *VirtualDisplay) Release() error {
	d.journal.Record("virtual_display.release")
	d.releaseOnce.Do(func() { close(d.stopCh) })
	<-d.doneCh
	return nil
}
