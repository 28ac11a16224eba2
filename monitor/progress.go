package monitor

import (
	"sync/atomic"
	"time"

	"github.com/polydawn/lfsmigrate"
)

const ProgressInterval = time.Second

/*
Progress counts completed work for one phase and reports it to the
monitor at most once per interval.  Safe for concurrent use.

Close sends a last report regardless of the interval.
*/
type Progress struct {
	mon      lfsmigrate.Monitor
	phase    string
	interval time.Duration
	work     atomic.Int64
	done     atomic.Int64
	lastSent atomic.Int64 // unix nanos
}

// Work may be negative if it isn't known yet.
func NewProgress(mon lfsmigrate.Monitor, phase string, work int64) *Progress {
	p := &Progress{mon: mon, phase: phase, interval: ProgressInterval}
	p.work.Store(work)
	p.lastSent.Store(time.Now().UnixNano())
	return p
}

func (p *Progress) SetWork(work int64) {
	p.work.Store(work)
}

func (p *Progress) Add(n int64) {
	p.done.Add(n)
	if p.mon.Chan == nil {
		return
	}
	now := time.Now().UnixNano()
	last := p.lastSent.Load()
	if now-last < int64(p.interval) || !p.lastSent.CompareAndSwap(last, now) {
		return
	}
	p.send()
}

func (p *Progress) Done() int64 {
	return p.done.Load()
}

func (p *Progress) Close() {
	if p.mon.Chan == nil {
		return
	}
	p.send()
}

func (p *Progress) send() {
	p.mon.Chan <- lfsmigrate.Event{
		Progress: &lfsmigrate.Event_Progress{
			Phase:     p.phase,
			TotalProg: p.done.Load(),
			TotalWork: p.work.Load(),
		},
	}
}
