package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/media"
	"github.com/mattjoyce/uploader/internal/protocol"
	"github.com/mattjoyce/uploader/internal/retry"
)

// outcome records whether an item already produced its terminal event.
type outcome struct {
	terminal bool
}

func (d *Dispatcher) upload(ctx context.Context, it *item, out *outcome) {
	job := it.job
	logger := log.WithJob(job.JobID).With("service", job.Service, "file", it.file, "adapter", it.adapter.Name())

	ctx, cancel := context.WithTimeout(ctx, d.cfg.FileTimeout)
	defer cancel()

	d.emit(protocol.StatusEvent(job.JobID, it.file, protocol.StatusProcessing))

	if err := d.limiters.WaitTarget(ctx, limiterKey(job, it.adapter)); err != nil {
		d.failFile(it, out, err, logger.With("stage", "rate_limit"))
		return
	}

	d.emit(protocol.StatusEvent(job.JobID, it.file, protocol.StatusUploading))

	progress := d.progressReporter(job.JobID, it.file)
	var res *adapter.Result
	attempts, err := retry.Do(ctx, d.policy, func(ctx context.Context, attempt int) error {
		r, err := it.adapter.Upload(adapter.WithProgress(ctx, progress), it.file, job)
		if err != nil {
			return err
		}
		if r == nil {
			return fault.Permanentf("%s returned no result", it.adapter.Name())
		}
		res = r
		return nil
	}, d.retryOptions(logger)...)
	if err != nil {
		d.failFile(it, out, err, logger.With("attempts", attempts))
		return
	}

	data := resultData(res, it.file, attempts)
	logger.Info("upload successful", "url", res.URL, "thumb", res.Thumb, "attempts", attempts)
	out.terminal = true
	d.stats.succeeded.Add(1)
	d.emit(protocol.ResultEvent(job.JobID, it.file, res.URL, res.Thumb, data))
	d.emit(protocol.StatusEvent(job.JobID, it.file, protocol.StatusDone))
}

// failFile emits the Failed or Timeout status followed by the error event.
func (d *Dispatcher) failFile(it *item, out *outcome, err error, logger *slog.Logger) {
	out.terminal = true
	if fault.IsDeadline(err) {
		d.stats.timedOut.Add(1)
		logger.Error("upload timed out", "timeout", d.cfg.FileTimeout.String(), "error", err)
		d.emit(protocol.StatusEvent(it.job.JobID, it.file, protocol.StatusTimeout))
		d.emit(protocol.ErrorEvent(it.job.JobID, it.file,
			fmt.Sprintf("Upload timed out after %s - worker released", d.cfg.FileTimeout)))
		return
	}
	d.stats.failed.Add(1)
	logger.Error("upload failed", "error", err, "kind", fault.KindOf(err).String())
	d.emit(protocol.StatusEvent(it.job.JobID, it.file, protocol.StatusFailed))
	d.emit(protocol.ErrorEvent(it.job.JobID, it.file, fmt.Sprintf("Upload failed: %v", err)))
}

func (d *Dispatcher) thumbnail(ctx context.Context, it *item, out *outcome) {
	logger := log.WithJob(it.job.JobID).With("file", it.file)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.FileTimeout)
	defer cancel()

	opts := media.ThumbOptions{Width: d.thumbs.DefaultWidth, Quality: d.thumbs.Quality}
	if w, err := strconv.Atoi(it.job.ConfigValue("width")); err == nil && w > 0 {
		opts.Width = w
	}

	b64, err := media.ThumbnailBase64(ctx, it.file, opts)
	out.terminal = true
	if err != nil {
		d.stats.failed.Add(1)
		logger.Error("thumbnail failed", "error", err)
		d.emit(protocol.ErrorEvent(it.job.JobID, it.file, fmt.Sprintf("Thumbnail failed: %v", err)))
		return
	}
	d.stats.succeeded.Add(1)
	logger.Debug("thumbnail generated", "width", opts.Width, "bytes", len(b64))
	d.emit(protocol.DataEvent(it.job.JobID, it.file, b64))
}

// control runs a gallery or credential action. The job's config carries
// gallery_name for create_gallery and gallery_hash or gallery_id for
// finalize_gallery.
func (d *Dispatcher) control(ctx context.Context, it *item, out *outcome) {
	job := it.job
	action := job.NormalizedAction()
	logger := log.WithJob(job.JobID).With("action", action, "service", job.Service)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.FileTimeout)
	defer cancel()

	if err := d.limiters.WaitTarget(ctx, limiterKey(job, it.adapter)); err != nil {
		d.failControl(it, out, err, logger)
		return
	}

	var ev protocol.Event
	_, err := retry.Do(ctx, d.policy, func(ctx context.Context, _ int) error {
		switch action {
		case protocol.ActionCreateGallery:
			g, err := adapter.CreateGallery(ctx, it.adapter, job.ConfigValue("gallery_name"), job)
			if err != nil {
				return err
			}
			ev = controlResult(job.JobID, g.ID, g.Payload())
		case protocol.ActionFinalizeGallery:
			handle := job.ConfigValue("gallery_hash")
			if handle == "" {
				handle = job.ConfigValue("gallery_id")
			}
			if err := adapter.FinalizeGallery(ctx, it.adapter, handle, job); err != nil {
				return err
			}
			ev = controlResult(job.JobID, "Gallery finalized", nil)
		case protocol.ActionVerify:
			if err := adapter.Verify(ctx, it.adapter, job.Creds); err != nil {
				return err
			}
			ev = controlResult(job.JobID, "Credentials verified", nil)
		case protocol.ActionListGalleries:
			list, err := adapter.ListGalleries(ctx, it.adapter, job)
			if err != nil {
				return err
			}
			payload := make([]map[string]string, 0, len(list))
			for _, g := range list {
				payload = append(payload, g.Payload())
			}
			ev = protocol.DataEvent(job.JobID, "", payload)
		default:
			return fault.Permanentf("unknown control action %q", action)
		}
		return nil
	}, d.retryOptions(logger)...)
	if err != nil {
		d.failControl(it, out, err, logger)
		return
	}

	out.terminal = true
	d.stats.succeeded.Add(1)
	logger.Info("control action completed")
	d.emit(ev)
}

func (d *Dispatcher) failControl(it *item, out *outcome, err error, logger *slog.Logger) {
	out.terminal = true
	if fault.IsDeadline(err) {
		d.stats.timedOut.Add(1)
	} else {
		d.stats.failed.Add(1)
	}
	logger.Error("control action failed", "error", err)

	msg := fmt.Sprintf("%s failed: %v", it.job.Action, err)
	if errors.Is(err, fault.ErrNotSupported) {
		msg = fmt.Sprintf("%s is not supported by %s", it.job.Action, it.adapter.Name())
	}
	d.emit(protocol.ErrorEvent(it.job.JobID, "", msg))
}

// recovered turns an adapter panic into an error event for the item, unless
// the item already reported its outcome.
func (d *Dispatcher) recovered(it *item, out *outcome, r any) {
	d.stats.panics.Add(1)
	err := fault.Wrap(fault.ErrPanic, fmt.Sprint(r), nil)
	log.WithJob(it.job.JobID).Error("worker recovered from panic",
		"file", it.file,
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()),
	)
	if out.terminal {
		return
	}
	out.terminal = true
	d.stats.failed.Add(1)
	if it.file != "" && it.kind == kindUpload {
		d.emit(protocol.StatusEvent(it.job.JobID, it.file, protocol.StatusFailed))
	}
	d.emit(protocol.ErrorEvent(it.job.JobID, it.file, fmt.Sprintf("Upload failed: %v", err)))
}

func (d *Dispatcher) retryOptions(logger *slog.Logger) []retry.Option {
	opts := make([]retry.Option, 0, len(d.retryOpts)+1)
	opts = append(opts, retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		logger.Warn("transient failure, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
	}))
	return append(opts, d.retryOpts...)
}

// progressReporter throttles progress callbacks to one event per interval,
// always letting the final one through.
func (d *Dispatcher) progressReporter(jobID, file string) adapter.ProgressFunc {
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func(sent, total int64) {
		mu.Lock()
		now := time.Now()
		final := total > 0 && sent >= total
		if !final && now.Sub(last) < d.progressInterval {
			mu.Unlock()
			return
		}
		last = now
		mu.Unlock()
		d.emit(protocol.ProgressEvent(jobID, file, sent, total))
	}
}

func controlResult(jobID, msg string, data any) protocol.Event {
	ev := protocol.ResultEvent(jobID, "", "", "", data)
	ev.Status = protocol.StatusSuccess
	ev.Msg = msg
	return ev
}

// limiterKey picks the rate limit bucket. Built-in targets share one
// bucket per adapter whatever alias the job used. The generic runner is
// keyed by the job's service, else the upload host.
func limiterKey(job *protocol.Job, a adapter.Adapter) string {
	if a.Name() != adapter.GenericName {
		return a.Name()
	}
	if job.Service != "" {
		return job.Service
	}
	if job.HTTPSpec != nil {
		if u, err := url.Parse(job.HTTPSpec.URL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return a.Name()
}

// resultData merges adapter extras with the local file digest.
func resultData(res *adapter.Result, file string, attempts int) map[string]any {
	data := make(map[string]any, len(res.Extra)+3)
	for k, v := range res.Extra {
		data[k] = v
	}
	data["attempts"] = attempts
	if digest, err := media.DigestFile(file); err == nil {
		data["blake3"] = digest.Blake3
		data["size"] = digest.Size
	}
	return data
}
