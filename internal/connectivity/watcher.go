// Package connectivity turns a reachability probe into "network online"
// transitions.
package connectivity

import (
	"context"
	"log"
	"time"
)

// Probe reports whether the ledger is reachable. A nil error means online.
type Probe func(ctx context.Context) error

// Event is emitted after every probe.
type Event struct {
	Online bool
	// CameOnline is set on the first successful probe after being offline,
	// including the first probe of a run.
	CameOnline bool
	At         time.Time
}

type Watcher struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration
}

// New returns a watcher that calls probe every interval. Each probe is
// bounded by timeout when it is positive.
func New(probe Probe, interval, timeout time.Duration) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{probe: probe, interval: interval, timeout: timeout}
}

// Run probes immediately and then on every tick until ctx is done. The
// returned channel is closed when Run stops.
func (w *Watcher) Run(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		online := false
		for {
			up := w.check(ctx)
			ev := Event{Online: up, CameOnline: up && !online, At: time.Now()}
			if up != online {
				log.Printf("connectivity: online=%t", up)
			}
			online = up

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events
}

func (w *Watcher) check(ctx context.Context) bool {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	return w.probe(ctx) == nil
}
