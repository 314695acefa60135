package watch

import (
	"sync"
	"time"
)

// debouncer collapses bursts of events into one batch per quiet interval.
// Multiple events for the same path within the window keep only the latest
// kind; a checkout touching hundreds of files yields a single batch.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	pending  map[string]Event
	timer    *time.Timer
	out      chan []Event
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{
		interval: interval,
		pending:  make(map[string]Event),
		out:      make(chan []Event, 16),
	}
}

func (d *debouncer) output() <-chan []Event {
	return d.out
}

func (d *debouncer) add(path string, kind Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[path] = Event{Kind: kind, Path: path}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		return
	}
	batch := make([]Event, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	d.pending = make(map[string]Event)

	select {
	case d.out <- batch:
	default:
		// A saturated consumer drops the batch; at-least-once delivery is
		// restored by the next change or the cold-tier fingerprint check.
	}
}
