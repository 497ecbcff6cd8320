package task

import (
	"sync/atomic"
	"time"
)

// ProgressTick is an animation heartbeat emitted only while a task is
// running. Ticks carry the id of the task they belong to; consumers drop
// ticks whose id no longer matches the active task.
type ProgressTick struct {
	TaskID ID
	Frame  int
}

// Reporter emits ProgressTicks at a fixed interval between start and stop.
// It never ticks while idle. Ticks are delivered best-effort: if the consumer
// is mid-render a tick is skipped rather than queued, since a stale animation
// frame is worthless.
type Reporter struct {
	interval time.Duration
	ticks    chan ProgressTick
	frame    atomic.Int64
	current  atomic.Pointer[run]
}

type run struct {
	id   ID
	quit chan struct{}
}

func newReporter(interval time.Duration) *Reporter {
	return &Reporter{
		interval: interval,
		ticks:    make(chan ProgressTick, 1),
	}
}

// Ticks is the channel the event loop pumps. It is never closed.
func (r *Reporter) Ticks() <-chan ProgressTick { return r.ticks }

// Frame returns the current animation frame counter.
func (r *Reporter) Frame() int { return int(r.frame.Load()) }

func (r *Reporter) start(id ID) {
	r.frame.Store(0)
	cur := &run{id: id, quit: make(chan struct{})}
	if old := r.current.Swap(cur); old != nil {
		close(old.quit)
	}
	go func() {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-cur.quit:
				return
			case <-t.C:
				f := int(r.frame.Add(1))
				select {
				case r.ticks <- ProgressTick{TaskID: id, Frame: f}:
				default:
				}
			}
		}
	}()
}

// stopFor halts ticking for id only. A task settling late must not silence
// the ticker of the task that replaced it.
func (r *Reporter) stopFor(id ID) {
	cur := r.current.Load()
	if cur == nil || cur.id != id {
		return
	}
	if r.current.CompareAndSwap(cur, nil) {
		close(cur.quit)
	}
}
