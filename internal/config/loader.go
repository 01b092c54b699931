package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a yaml file on top of Defaults().
// ${VAR} references are expanded from the environment before parsing. When
// a "<file>.b3" checksum sits next to the file, the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if err := verifyChecksumIfPresent(absPath); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes yaml bytes on top of Defaults() and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	expanded := interpolateEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyConfigDefaults fills zero values a partial file may have left behind.
func applyConfigDefaults(cfg *Config) {
	def := Defaults()

	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = def.Dispatch.Workers
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = def.Dispatch.QueueSize
	}
	if cfg.Dispatch.QueueWarnDepth == 0 {
		cfg.Dispatch.QueueWarnDepth = cfg.Dispatch.QueueSize / 2
	}
	if cfg.Dispatch.FileTimeout == 0 {
		cfg.Dispatch.FileTimeout = def.Dispatch.FileTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if cfg.RateLimits.Default.RPS == 0 {
		cfg.RateLimits.Default = def.RateLimits.Default
	}
	if cfg.RateLimits.Targets == nil {
		cfg.RateLimits.Targets = make(map[string]Bucket)
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = def.HTTP.Timeout
	}
	if cfg.HTTP.ResponseHeaderTimeout == 0 {
		cfg.HTTP.ResponseHeaderTimeout = def.HTTP.ResponseHeaderTimeout
	}
	if cfg.HTTP.PreRequestTimeout == 0 {
		cfg.HTTP.PreRequestTimeout = def.HTTP.PreRequestTimeout
	}
	if cfg.HTTP.MaxIdleConnsPerHost == 0 {
		cfg.HTTP.MaxIdleConnsPerHost = def.HTTP.MaxIdleConnsPerHost
	}
	if cfg.HTTP.UserAgent == "" {
		cfg.HTTP.UserAgent = def.HTTP.UserAgent
	}
	if cfg.Status.EventBuffer == 0 {
		cfg.Status.EventBuffer = def.Status.EventBuffer
	}
	if cfg.Thumbnails.DefaultWidth == 0 {
		cfg.Thumbnails.DefaultWidth = def.Thumbnails.DefaultWidth
	}
	if cfg.Thumbnails.Quality == 0 {
		cfg.Thumbnails.Quality = def.Thumbnails.Quality
	}
}

// interpolateEnv replaces ${VAR} with the environment value. Unknown
// variables are left in place and caught by validation where it matters.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}
