// Package sidecar is the process entry loop: it reads jobs from the host
// and hands them to the dispatcher one at a time.
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

// Submitter accepts decoded jobs. Submit may block to apply backpressure.
type Submitter interface {
	Submit(ctx context.Context, job *protocol.Job) error
}

// Stats summarizes one run of the loop.
type Stats struct {
	Jobs      int
	Malformed int
}

// Run reads jobs from r until end of input or ctx is cancelled. Malformed
// lines are reported as error events and skipped. The caller drains the
// dispatcher after Run returns.
func Run(ctx context.Context, r io.Reader, sub Submitter, emitter protocol.Emitter) (Stats, error) {
	logger := log.WithComponent("sidecar")
	dec := protocol.NewDecoder(r)
	var st Stats

	// Decoder.Next blocks on the reader, so cancellation is noticed between
	// lines. Closing the input unblocks it.
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		job, err := dec.Next()
		if errors.Is(err, io.EOF) {
			logger.Info("input closed", "jobs", st.Jobs, "malformed", st.Malformed)
			return st, nil
		}

		var decodeErr *protocol.DecodeError
		if errors.As(err, &decodeErr) {
			st.Malformed++
			logger.Warn("skipping malformed input line", "line", decodeErr.Line, "error", decodeErr.Err)
			emitter.Emit(protocol.ErrorEvent("", "", fmt.Sprintf("JSON Decode Error: %v", decodeErr.Err)))
			continue
		}
		if err != nil {
			return st, fmt.Errorf("read input: %w", err)
		}

		st.Jobs++
		log.WithJob(job.JobID).Debug("job received",
			"action", job.Action,
			"service", job.Service,
			"files", len(job.Files),
		)
		if err := sub.Submit(ctx, job); err != nil {
			return st, fmt.Errorf("submit job %s: %w", job.JobID, err)
		}
	}
}
