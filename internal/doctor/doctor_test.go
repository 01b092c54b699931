package doctor

import (
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/uploader/internal/config"
)

func validConfig() *config.Config {
	return config.Defaults()
}

func assertHasError(t *testing.T, r *Result, category, fieldSubstr string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Field, fieldSubstr) {
			return
		}
	}
	t.Fatalf("expected error category=%q field~=%q, got %+v", category, fieldSubstr, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, fieldSubstr string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Field, fieldSubstr) {
			return
		}
	}
	t.Fatalf("expected warning category=%q field~=%q, got %+v", category, fieldSubstr, r.Warnings)
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()
	r := New(validConfig()).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings for defaults, got %v", r.Warnings)
	}
}

func TestValidate_StatusListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Status.Listen = "not-an-address"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "status", "status.listen")

	cfg.Status.Listen = "0.0.0.0:8090"
	r = New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got %v", r.Errors)
	}
	assertHasWarning(t, r, "security", "status.listen")

	cfg.Status.Token = "secret"
	r = New(cfg).Validate()
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings with token set, got %v", r.Warnings)
	}
}

func TestValidate_S3(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Targets.S3 = &config.S3Config{
		Endpoint:      "https://s3.example.com",
		Bucket:        "media/photos",
		PublicBaseURL: "cdn.example.com",
	}
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "targets", "targets.s3.endpoint")
	assertHasError(t, r, "targets", "targets.s3.bucket")
	assertHasError(t, r, "targets", "targets.s3.public_base_url")
	assertHasWarning(t, r, "security", "targets.s3.use_ssl")
	assertHasWarning(t, r, "env_vars", "targets.s3.access_key")
	assertHasWarning(t, r, "env_vars", "targets.s3.secret_key")
}

func TestValidate_LocalS3WithoutTLS(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Targets.S3 = &config.S3Config{Endpoint: "127.0.0.1:9000", Bucket: "media", AccessKey: "a", SecretKey: "s"}
	r := New(cfg).Validate()
	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected clean result, got %+v", r)
	}
}

func TestValidate_Deadlines(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dispatch.FileTimeout = 30 * time.Second
	cfg.HTTP.Timeout = 10 * time.Second
	cfg.HTTP.PreRequestTimeout = 30 * time.Second
	cfg.Retry.BaseDelay = time.Minute
	cfg.Retry.MaxDelay = time.Minute
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("deadline issues are warnings, got errors %v", r.Errors)
	}
	assertHasWarning(t, r, "deadlines", "http.timeout")
	assertHasWarning(t, r, "deadlines", "http.pre_request_timeout")
	assertHasWarning(t, r, "deadlines", "retry.base_delay")
}

func TestValidate_DispatchAndRateLimits(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dispatch.Workers = 64
	cfg.Dispatch.QueueWarnDepth = 500
	cfg.RateLimits.Targets["fast.example"] = config.Bucket{RPS: 50, Burst: 50}
	cfg.HTTP.Referers["bad/key"] = "example.com"
	r := New(cfg).Validate()
	assertHasWarning(t, r, "dispatch", "dispatch.workers")
	assertHasWarning(t, r, "dispatch", "dispatch.queue_warn_depth")
	assertHasWarning(t, r, "rate_limits", "fast.example")
	assertHasWarning(t, r, "http", "bad/key")
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "status", Field: "status.listen", Message: "bad"}},
		Warnings: []Issue{{Category: "dispatch", Message: "slow"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "Configuration invalid (1 error(s), 1 warning(s))") {
		t.Fatalf("unexpected header: %s", out)
	}
	if !strings.Contains(out, "ERROR [status] status.listen: bad") {
		t.Fatalf("missing error line: %s", out)
	}
	if !strings.Contains(out, "WARN  [dispatch] slow") {
		t.Fatalf("missing warning line: %s", out)
	}

	if got := FormatHuman(&Result{Valid: true}); got != "Configuration valid.\n" {
		t.Fatalf("unexpected clean output %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected json: %s", out)
	}
}
