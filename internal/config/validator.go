package config

import (
	"errors"
	"fmt"
	"strings"
)

// validate checks value ranges and unresolved secrets.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Dispatch.Workers < 1 {
		errs = append(errs, fmt.Errorf("dispatch.workers must be >= 1, got %d", cfg.Dispatch.Workers))
	}
	if cfg.Dispatch.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("dispatch.queue_size must be >= 1, got %d", cfg.Dispatch.QueueSize))
	}
	if cfg.Dispatch.FileTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.file_timeout must be positive"))
	}
	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be >= 1, got %d", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay (%s) is below retry.base_delay (%s)",
			cfg.Retry.MaxDelay, cfg.Retry.BaseDelay))
	}
	if cfg.Retry.Jitter < 0 || cfg.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("retry.jitter must be within [0,1], got %v", cfg.Retry.Jitter))
	}

	errs = append(errs, validateBucket("rate_limits.default", cfg.RateLimits.Default))
	if cfg.RateLimits.Global != nil {
		errs = append(errs, validateBucket("rate_limits.global", *cfg.RateLimits.Global))
	}
	for name, b := range cfg.RateLimits.Targets {
		errs = append(errs, validateBucket("rate_limits.targets."+name, b))
	}

	if q := cfg.Thumbnails.Quality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("thumbnails.quality must be within [1,100], got %d", q))
	}

	if envVarPattern.MatchString(cfg.Status.Token) {
		errs = append(errs, fmt.Errorf("status.token references unset environment variable %s",
			envVarPattern.FindString(cfg.Status.Token)))
	}

	if s3 := cfg.Targets.S3; s3 != nil {
		if strings.TrimSpace(s3.Endpoint) == "" {
			errs = append(errs, errors.New("targets.s3.endpoint is required"))
		}
		if strings.TrimSpace(s3.Bucket) == "" {
			errs = append(errs, errors.New("targets.s3.bucket is required"))
		}
		for field, v := range map[string]string{"access_key": s3.AccessKey, "secret_key": s3.SecretKey} {
			if envVarPattern.MatchString(v) {
				errs = append(errs, fmt.Errorf("targets.s3.%s references unset environment variable %s",
					field, envVarPattern.FindString(v)))
			}
		}
	}

	return errors.Join(errs...)
}

func validateBucket(path string, b Bucket) error {
	if b.RPS <= 0 {
		return fmt.Errorf("%s.rps must be positive, got %v", path, b.RPS)
	}
	if b.Burst < 1 {
		return fmt.Errorf("%s.burst must be >= 1, got %d", path, b.Burst)
	}
	return nil
}
