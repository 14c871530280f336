package progress

import (
	"sync"
	"time"

	"github.com/viant/tasker/model/task"
)

// Delta represents an incremental counter change. Fields are signed so a
// transition is expressed as -1 on the old status and +1 on the new one.
type Delta struct {
	Total     int
	Queued    int
	Running   int
	Succeeded int
	Failed    int
	Canceled  int
}

// Transition returns the delta moving one task from `from` to `to`. An
// empty `from` counts a new task.
func Transition(from, to task.Status) Delta {
	var d Delta
	if from == "" {
		d.Total = 1
	}
	d.add(from, -1)
	d.add(to, 1)
	return d
}

func (d *Delta) add(status task.Status, value int) {
	switch status {
	case task.StatusQueued:
		d.Queued += value
	case task.StatusRunning:
		d.Running += value
	case task.StatusSucceeded:
		d.Succeeded += value
	case task.StatusFailed:
		d.Failed += value
	case task.StatusCanceled:
		d.Canceled += value
	}
}

// Counters is a point-in-time copy of the tracked values.
type Counters struct {
	StartedAt time.Time `json:"startedAt"`
	Total     int       `json:"total"`
	Queued    int       `json:"queued"`
	Running   int       `json:"running"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Canceled  int       `json:"canceled"`
}

// Progress keeps aggregated task counters. It is safe for concurrent use.
type Progress struct {
	Name string

	mu       sync.Mutex
	counters Counters
	onChange func(Counters)
}

// New creates a tracker
func New(name string) *Progress {
	return &Progress{Name: name, counters: Counters{StartedAt: time.Now()}}
}

// Update applies the supplied delta. The onChange callback, if any, is
// invoked with a copy outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	c := &p.counters
	c.Total += d.Total
	c.Queued += d.Queued
	c.Running += d.Running
	c.Succeeded += d.Succeeded
	c.Failed += d.Failed
	c.Canceled += d.Canceled
	snapshot := *c
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters.
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// OnChange registers a callback invoked after every Update. Passing nil
// disables it; only one callback is active.
func (p *Progress) OnChange(cb func(Counters)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}
