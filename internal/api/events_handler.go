package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/uploader/internal/events"
)

const heartbeatEvery = 15 * time.Second

// eventStream writes hub events to one follower as server-sent events.
// It remembers the last id written so replayed and live events never
// repeat.
type eventStream struct {
	w     http.ResponseWriter
	flush http.Flusher
	job   string
	last  int64
}

// send writes ev unless it belongs to another job or was already written.
func (es *eventStream) send(ev events.Event) error {
	if ev.ID <= es.last || (es.job != "" && ev.JobID != es.job) {
		return nil
	}
	if _, err := fmt.Fprintf(es.w, "id: %d\n", ev.ID); err != nil {
		return err
	}
	if ev.Type != "" {
		if _, err := fmt.Fprintf(es.w, "event: %s\n", ev.Type); err != nil {
			return err
		}
	}
	// Protocol events marshal to a single line.
	if _, err := fmt.Fprintf(es.w, "data: %s\n\n", ev.Data); err != nil {
		return err
	}
	es.last = ev.ID
	return nil
}

func (es *eventStream) heartbeat() error {
	_, err := fmt.Fprint(es.w, ": keep-alive\n\n")
	return err
}

// handleEvents streams upload events. A follower resumes with the
// Last-Event-ID header or ?after=, and narrows to one job with ?job_id=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	es := &eventStream{
		w:     w,
		flush: flusher,
		job:   r.URL.Query().Get("job_id"),
		last:  resumeFrom(r),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Follow first, then replay: an event emitted in between shows up in
	// both and send drops the second copy.
	live, stop := s.events.Subscribe()
	defer stop()

	for _, ev := range s.events.SnapshotSince(es.last) {
		if err := es.send(ev); err != nil {
			return
		}
	}
	flusher.Flush()

	tick := time.NewTicker(heartbeatEvery)
	defer tick.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-live:
			if !open {
				return
			}
			err = es.send(ev)
		case <-tick.C:
			err = es.heartbeat()
		}
		if err != nil {
			s.logger.Debug("event follower gone", "job_id", es.job, "last_id", es.last, "error", err)
			return
		}
		flusher.Flush()
	}
}

// resumeFrom reads the id a reconnecting follower last saw. Garbage reads
// as 0, which replays everything retained.
func resumeFrom(r *http.Request) int64 {
	v := r.Header.Get("Last-Event-ID")
	if v == "" {
		v = r.URL.Query().Get("after")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
