package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
	"github.com/mattjoyce/uploader/internal/ratelimit"
	"github.com/mattjoyce/uploader/internal/retry"
)

const defaultProgressInterval = 2 * time.Second

// ErrDraining is returned by Submit once Drain has started.
var ErrDraining = errors.New("dispatcher is draining")

type itemKind int

const (
	kindUpload itemKind = iota
	kindThumb
	kindControl
)

// item is one unit of work: a single file of a job, or a control action.
type item struct {
	kind    itemKind
	job     *protocol.Job
	file    string
	adapter adapter.Adapter
	batch   *batch
}

// batch counts down the outstanding items of one job.
type batch struct {
	jobID     string
	remaining atomic.Int64
}

func newBatch(jobID string, n int) *batch {
	b := &batch{jobID: jobID}
	b.remaining.Store(int64(n))
	return b
}

// done marks one item finished and reports whether it was the last.
func (b *batch) done() bool {
	return b.remaining.Add(-1) == 0
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetryOptions passes extra options to every retry loop.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(d *Dispatcher) { d.retryOpts = append(d.retryOpts, opts...) }
}

// WithProgressInterval sets the minimum gap between progress events for one file.
func WithProgressInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.progressInterval = interval }
}

// Dispatcher owns the worker pool and the bounded item queue.
type Dispatcher struct {
	cfg      config.DispatchConfig
	thumbs   config.ThumbConfig
	policy   retry.Policy
	registry *adapter.Registry
	limiters *ratelimit.Registry
	emitter  protocol.Emitter
	logger   *slog.Logger

	retryOpts        []retry.Option
	progressInterval time.Duration

	queue chan *item
	wg    sync.WaitGroup

	// mu guards closing the queue against in-flight sends.
	mu        sync.RWMutex
	closed    bool
	warned    atomic.Bool
	startOnce sync.Once
	drainOnce sync.Once

	stats counters
}

// New creates a Dispatcher. Workers are not running until Start.
func New(cfg *config.Config, registry *adapter.Registry, limiters *ratelimit.Registry, emitter protocol.Emitter, opts ...Option) *Dispatcher {
	dc := cfg.Dispatch
	def := config.Defaults().Dispatch
	if dc.Workers <= 0 {
		dc.Workers = def.Workers
	}
	if dc.QueueSize <= 0 {
		dc.QueueSize = def.QueueSize
	}
	if dc.QueueWarnDepth <= 0 {
		dc.QueueWarnDepth = dc.QueueSize / 2
	}
	if dc.FileTimeout <= 0 {
		dc.FileTimeout = def.FileTimeout
	}

	d := &Dispatcher{
		cfg:              dc,
		thumbs:           cfg.Thumbnails,
		policy:           retry.FromConfig(cfg.Retry),
		registry:         registry,
		limiters:         limiters,
		emitter:          emitter,
		logger:           log.WithComponent("dispatch"),
		progressInterval: defaultProgressInterval,
		queue:            make(chan *item, dc.QueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.stats.workers = dc.Workers
	return d
}

// Start launches the workers. Items keep running under ctx until Drain
// returns; cancelling ctx fails whatever is still in flight.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.logger.Info("dispatch loop started", "workers", d.cfg.Workers, "queue_size", d.cfg.QueueSize)
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(ctx, i)
		}
	})
}

// Drain stops accepting work, lets queued and in-flight items finish and
// waits for every worker to exit.
func (d *Dispatcher) Drain() {
	d.drainOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		d.wg.Wait()
		d.logger.Info("dispatch loop stopped",
			"succeeded", d.stats.succeeded.Load(),
			"failed", d.stats.failed.Load(),
			"timed_out", d.stats.timedOut.Load(),
		)
	})
}

// Submit accepts one job. It blocks while the queue is full. It returns
// ctx.Err() if ctx ends before every item was queued; the items that did
// not make it are failed so the job still completes.
func (d *Dispatcher) Submit(ctx context.Context, job *protocol.Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDraining
	}
	d.stats.jobs.Add(1)

	jobLogger := log.WithJob(job.JobID).With("action", job.Action, "service", job.Service, "files", len(job.Files))

	switch job.NormalizedAction() {
	case protocol.ActionUpload, protocol.ActionHTTPUpload:
		return d.submitFiles(ctx, job, kindUpload, jobLogger)
	case protocol.ActionGenerateThumb:
		return d.submitFiles(ctx, job, kindThumb, jobLogger)
	case protocol.ActionCreateGallery, protocol.ActionFinalizeGallery,
		protocol.ActionVerify, protocol.ActionListGalleries:
		return d.submitControl(ctx, job, jobLogger)
	default:
		if len(job.Files) > 0 {
			jobLogger.Debug("unknown action with files, treating as upload")
			return d.submitFiles(ctx, job, kindUpload, jobLogger)
		}
		jobLogger.Warn("unknown action")
		d.emit(protocol.ErrorEvent(job.JobID, "", "Unknown action: "+job.Action))
		d.emit(protocol.BatchComplete(job.JobID))
		return nil
	}
}

func (d *Dispatcher) submitFiles(ctx context.Context, job *protocol.Job, kind itemKind, jobLogger *slog.Logger) error {
	if len(job.Files) == 0 {
		jobLogger.Debug("job has no files")
		d.emit(protocol.BatchComplete(job.JobID))
		return nil
	}

	var a adapter.Adapter
	if kind == kindUpload {
		var err error
		a, err = d.registry.Resolve(job)
		if err != nil {
			jobLogger.Error("unsupported service", "error", err)
			for _, file := range job.Files {
				d.stats.failed.Add(1)
				d.emit(protocol.ErrorEvent(job.JobID, file, unsupportedMessage(job)))
			}
			d.emit(protocol.BatchComplete(job.JobID))
			return nil
		}
	}

	b := newBatch(job.JobID, len(job.Files))
	for i, file := range job.Files {
		it := &item{kind: kind, job: job, file: file, adapter: a, batch: b}
		if err := d.enqueue(ctx, it); err != nil {
			jobLogger.Warn("submit interrupted", "queued", i, "error", err)
			for _, rest := range job.Files[i:] {
				d.stats.failed.Add(1)
				d.emit(protocol.ErrorEvent(job.JobID, rest, "Upload cancelled before start"))
				d.finish(b)
			}
			return err
		}
	}
	jobLogger.Debug("job queued", "queue_depth", len(d.queue))
	return nil
}

func (d *Dispatcher) submitControl(ctx context.Context, job *protocol.Job, jobLogger *slog.Logger) error {
	a, err := d.registry.Resolve(job)
	if err != nil {
		jobLogger.Error("unsupported service", "error", err)
		d.stats.failed.Add(1)
		d.emit(protocol.ErrorEvent(job.JobID, "", unsupportedMessage(job)))
		d.emit(protocol.BatchComplete(job.JobID))
		return nil
	}

	b := newBatch(job.JobID, 1)
	if err := d.enqueue(ctx, &item{kind: kindControl, job: job, adapter: a, batch: b}); err != nil {
		d.stats.failed.Add(1)
		d.emit(protocol.ErrorEvent(job.JobID, "", fmt.Sprintf("%s cancelled before start", job.Action)))
		d.finish(b)
		return err
	}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, it *item) error {
	select {
	case d.queue <- it:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.stats.queued.Add(1)

	depth := len(d.queue)
	switch {
	case depth >= d.cfg.QueueWarnDepth:
		if d.warned.CompareAndSwap(false, true) {
			d.logger.Warn("job queue filling up - workers may be slow", "queue_depth", depth, "queue_size", d.cfg.QueueSize)
		}
	case depth < d.cfg.QueueWarnDepth/2:
		d.warned.Store(false)
	}
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	d.logger.Debug("worker started", "worker_id", id)
	for it := range d.queue {
		d.stats.queued.Add(-1)
		d.run(ctx, id, it)
	}
	d.logger.Debug("worker shutting down", "worker_id", id)
}

// run processes one item. The batch countdown and panic recovery are
// deferred so they happen on every exit path, recovery first.
func (d *Dispatcher) run(ctx context.Context, workerID int, it *item) {
	d.stats.inFlight.Add(1)
	start := time.Now()
	out := &outcome{}

	defer func() {
		d.stats.inFlight.Add(-1)
		d.finish(it.batch)
	}()
	defer func() {
		if r := recover(); r != nil {
			d.recovered(it, out, r)
		}
	}()

	switch it.kind {
	case kindUpload:
		d.upload(ctx, it, out)
	case kindThumb:
		d.thumbnail(ctx, it, out)
	case kindControl:
		d.control(ctx, it, out)
	}

	d.logger.Debug("worker completed item",
		"worker_id", workerID,
		"job_id", it.job.JobID,
		"file", it.file,
		"duration", time.Since(start).String(),
	)
}

func (d *Dispatcher) finish(b *batch) {
	if b.done() {
		d.emit(protocol.BatchComplete(b.jobID))
	}
}

func (d *Dispatcher) emit(ev protocol.Event) {
	d.emitter.Emit(ev)
}

func unsupportedMessage(job *protocol.Job) string {
	name := job.Service
	if name == "" {
		name = job.Action
	}
	return "Unsupported service: " + name
}
