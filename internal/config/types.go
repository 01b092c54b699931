package config

import "time"

// Config represents the complete uploader configuration.
type Config struct {
	LogLevel   string          `yaml:"log_level"`
	Dispatch   DispatchConfig  `yaml:"dispatch"`
	Retry      RetryConfig     `yaml:"retry"`
	RateLimits RateLimitConfig `yaml:"rate_limits"`
	HTTP       HTTPConfig      `yaml:"http"`
	Status     StatusConfig    `yaml:"status,omitempty"`
	Thumbnails ThumbConfig     `yaml:"thumbnails"`
	Targets    TargetsConfig   `yaml:"targets,omitempty"`
}

// DispatchConfig sizes the worker pool and bounds per-file latency.
type DispatchConfig struct {
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	QueueWarnDepth int           `yaml:"queue_warn_depth"`
	FileTimeout    time.Duration `yaml:"file_timeout"`
}

// RetryConfig defines retry behavior for transient upload failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      float64       `yaml:"jitter"`
}

// Bucket is one token bucket: sustained rate and burst size.
type Bucket struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// RateLimitConfig holds the bucket applied to each target.
type RateLimitConfig struct {
	Default Bucket            `yaml:"default"`
	Global  *Bucket           `yaml:"global,omitempty"` // nil disables the shared bucket
	Targets map[string]Bucket `yaml:"targets,omitempty"`
}

// HTTPConfig configures the shared client used by every adapter.
type HTTPConfig struct {
	Timeout               time.Duration     `yaml:"timeout"`
	ResponseHeaderTimeout time.Duration     `yaml:"response_header_timeout"`
	PreRequestTimeout     time.Duration     `yaml:"pre_request_timeout"`
	MaxIdleConnsPerHost   int               `yaml:"max_idle_conns_per_host"`
	UserAgent             string            `yaml:"user_agent"`
	Referers              map[string]string `yaml:"referers,omitempty"` // host suffix -> Referer header
}

// StatusConfig enables the local status server. Empty Listen disables it.
type StatusConfig struct {
	Listen      string `yaml:"listen"`
	Token       string `yaml:"token,omitempty"`
	EventBuffer int    `yaml:"event_buffer"`
}

// ThumbConfig controls generate_thumb output.
type ThumbConfig struct {
	DefaultWidth int `yaml:"default_width"`
	Quality      int `yaml:"quality"`
}

// TargetsConfig carries settings for built-in targets that need them.
type TargetsConfig struct {
	S3 *S3Config `yaml:"s3,omitempty"`
}

// S3Config points the s3 target at an S3-compatible bucket.
type S3Config struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region,omitempty"`
	UseSSL        bool   `yaml:"use_ssl"`
	Prefix        string `yaml:"prefix,omitempty"`
	PublicBaseURL string `yaml:"public_base_url,omitempty"`
	CreateBucket  bool   `yaml:"create_bucket,omitempty"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		LogLevel: "INFO",
		Dispatch: DispatchConfig{
			Workers:        8,
			QueueSize:      100,
			QueueWarnDepth: 50,
			FileTimeout:    120 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.2,
		},
		RateLimits: RateLimitConfig{
			Default: Bucket{RPS: 2, Burst: 5},
			Global:  &Bucket{RPS: 10, Burst: 20},
			Targets: map[string]Bucket{
				"imx.to":         {RPS: 2, Burst: 5},
				"pixhost.to":     {RPS: 2, Burst: 5},
				"vipr.im":        {RPS: 2, Burst: 5},
				"turboimagehost": {RPS: 2, Burst: 5},
				"imagebam.com":   {RPS: 2, Burst: 5},
				"vipergirls.to":  {RPS: 1, Burst: 3},
			},
		},
		HTTP: HTTPConfig{
			Timeout:               180 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			PreRequestTimeout:     60 * time.Second,
			MaxIdleConnsPerHost:   10,
			UserAgent:             defaultUserAgent,
			Referers: map[string]string{
				"imagebam.com":       "https://www.imagebam.com/",
				"vipr.im":            "https://vipr.im/",
				"turboimagehost.com": "https://www.turboimagehost.com/",
				"imx.to":             "https://imx.to/",
				"vipergirls.to":      "https://vipergirls.to/forum.php",
			},
		},
		Status: StatusConfig{
			EventBuffer: 256,
		},
		Thumbnails: ThumbConfig{
			DefaultWidth: 100,
			Quality:      70,
		},
	}
}
