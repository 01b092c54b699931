// Package doctor checks an uploader configuration for settings that parse
// but would misbehave at runtime.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/mattjoyce/uploader/internal/config"
)

// maxUsefulWorkers is where more workers stop adding throughput because
// per-target rate limits dominate.
const maxUsefulWorkers = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateStatus(r)
	d.validateS3(r)
	d.warnDeadlines(r)
	d.warnDispatchSizing(r)
	d.warnRateLimits(r)
	d.warnReferers(r)
	d.warnMissingSecrets(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateStatus checks the optional status server settings.
func (d *Doctor) validateStatus(r *Result) {
	st := d.cfg.Status
	if st.Listen == "" {
		return
	}
	host, _, err := net.SplitHostPort(st.Listen)
	if err != nil {
		d.addError(r, "status", "status.listen", fmt.Sprintf("not a host:port address: %v", err))
		return
	}
	if st.Token == "" && !isLoopback(host) {
		d.addWarning(r, "security", "status.listen",
			"status server listens beyond loopback without status.token")
	}
	if st.EventBuffer < 1 {
		d.addWarning(r, "status", "status.event_buffer", "event buffer is empty; late SSE clients get no history")
	}
}

func (d *Doctor) validateS3(r *Result) {
	s3 := d.cfg.Targets.S3
	if s3 == nil {
		return
	}
	if strings.Contains(s3.Endpoint, "://") {
		d.addError(r, "targets", "targets.s3.endpoint",
			"endpoint must be host[:port] without a scheme; use use_ssl for https")
	}
	if strings.Contains(s3.Bucket, "/") {
		d.addError(r, "targets", "targets.s3.bucket", "bucket name must not contain '/'")
	}
	if !s3.UseSSL {
		host := s3.Endpoint
		if h, _, err := net.SplitHostPort(s3.Endpoint); err == nil {
			host = h
		}
		if !isLoopback(host) {
			d.addWarning(r, "security", "targets.s3.use_ssl", "credentials are sent without TLS")
		}
	}
	if s3.PublicBaseURL != "" && !strings.HasPrefix(s3.PublicBaseURL, "http://") && !strings.HasPrefix(s3.PublicBaseURL, "https://") {
		d.addError(r, "targets", "targets.s3.public_base_url", "must be an absolute http(s) URL")
	}
}

// warnDeadlines flags timeouts that cut into each other.
func (d *Doctor) warnDeadlines(r *Result) {
	fileTimeout := d.cfg.Dispatch.FileTimeout
	if t := d.cfg.HTTP.Timeout; t > 0 && t < fileTimeout {
		d.addWarning(r, "deadlines", "http.timeout",
			fmt.Sprintf("%s is shorter than dispatch.file_timeout (%s); large uploads end early", t, fileTimeout))
	}
	if t := d.cfg.HTTP.PreRequestTimeout; t >= fileTimeout {
		d.addWarning(r, "deadlines", "http.pre_request_timeout",
			fmt.Sprintf("%s leaves no time for the upload inside dispatch.file_timeout (%s)", t, fileTimeout))
	}
	if d.cfg.Retry.MaxAttempts > 1 && d.cfg.Retry.BaseDelay >= fileTimeout {
		d.addWarning(r, "deadlines", "retry.base_delay",
			fmt.Sprintf("%s never fits inside dispatch.file_timeout (%s); retries will be skipped", d.cfg.Retry.BaseDelay, fileTimeout))
	}
}

func (d *Doctor) warnDispatchSizing(r *Result) {
	dc := d.cfg.Dispatch
	if dc.Workers > maxUsefulWorkers {
		d.addWarning(r, "dispatch", "dispatch.workers",
			fmt.Sprintf("%d workers; more than %d rarely helps because per-target rate limits cap throughput", dc.Workers, maxUsefulWorkers))
	}
	if dc.QueueWarnDepth > dc.QueueSize {
		d.addWarning(r, "dispatch", "dispatch.queue_warn_depth",
			fmt.Sprintf("%d is above dispatch.queue_size (%d) and can never trigger", dc.QueueWarnDepth, dc.QueueSize))
	}
}

// warnRateLimits flags target buckets the global bucket will always throttle.
func (d *Doctor) warnRateLimits(r *Result) {
	global := d.cfg.RateLimits.Global
	if global == nil {
		return
	}
	names := make([]string, 0, len(d.cfg.RateLimits.Targets))
	for name := range d.cfg.RateLimits.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if b := d.cfg.RateLimits.Targets[name]; b.RPS > global.RPS {
			d.addWarning(r, "rate_limits", "rate_limits.targets."+name,
				fmt.Sprintf("rps %v exceeds rate_limits.global rps %v; the global bucket wins", b.RPS, global.RPS))
		}
	}
}

func (d *Doctor) warnReferers(r *Result) {
	for suffix, ref := range d.cfg.HTTP.Referers {
		if strings.Contains(suffix, "/") {
			d.addWarning(r, "http", "http.referers."+suffix, "key should be a bare host suffix")
		}
		if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
			d.addWarning(r, "http", "http.referers."+suffix, "referer is not an absolute URL")
		}
	}
}

// warnMissingSecrets flags empty credentials, usually an unset ${VAR}.
func (d *Doctor) warnMissingSecrets(r *Result) {
	if s3 := d.cfg.Targets.S3; s3 != nil {
		if s3.AccessKey == "" {
			d.addWarning(r, "env_vars", "targets.s3.access_key", "empty (possibly unresolved environment variable)")
		}
		if s3.SecretKey == "" {
			d.addWarning(r, "env_vars", "targets.s3.secret_key", "empty (possibly unresolved environment variable)")
		}
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
