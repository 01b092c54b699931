package dispatch

import "sync/atomic"

type counters struct {
	workers   int
	jobs      atomic.Int64
	queued    atomic.Int64
	inFlight  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	panics    atomic.Int64
}

// Stats is a point-in-time snapshot of dispatcher activity.
type Stats struct {
	Workers   int   `json:"workers"`
	Jobs      int64 `json:"jobs"`
	Queued    int64 `json:"queued"`
	InFlight  int64 `json:"in_flight"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	TimedOut  int64 `json:"timed_out"`
	Panics    int64 `json:"panics"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:   d.stats.workers,
		Jobs:      d.stats.jobs.Load(),
		Queued:    d.stats.queued.Load(),
		InFlight:  d.stats.inFlight.Load(),
		Succeeded: d.stats.succeeded.Load(),
		Failed:    d.stats.failed.Load(),
		TimedOut:  d.stats.timedOut.Load(),
		Panics:    d.stats.panics.Load(),
	}
}
