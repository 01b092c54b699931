package adapter

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/fault"
)

const (
	maxErrorBody = 4 << 10
	maxBody      = 8 << 20
)

// Client wraps the shared HTTP transport used by every target. The
// transport is built once and never mutated; sessions share it.
type Client struct {
	http              *http.Client
	userAgent         string
	referers          map[string]string
	preRequestTimeout time.Duration
}

// NewClient builds the shared client from config.
func NewClient(cfg config.HTTPConfig) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &Client{
		http:              &http.Client{Transport: transport, Timeout: cfg.Timeout},
		userAgent:         cfg.UserAgent,
		referers:          cfg.Referers,
		preRequestTimeout: cfg.PreRequestTimeout,
	}
}

// NewSession returns a client with its own cookie jar on the shared transport.
func (c *Client) NewSession() *Client {
	jar, _ := cookiejar.New(nil)
	s := *c
	s.http = &http.Client{Transport: c.http.Transport, Timeout: c.http.Timeout, Jar: jar}
	return &s
}

// PreRequestTimeout bounds each step of a pre-request chain.
func (c *Client) PreRequestTimeout() time.Duration {
	return c.preRequestTimeout
}

// Do sends req and maps non-2xx responses to *fault.StatusError. On
// success the caller owns resp.Body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.DoRaw(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &fault.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

// DoRaw sends req with the default headers applied and no status mapping.
func (c *Client) DoRaw(req *http.Request) (*http.Response, error) {
	c.decorate(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Host, err)
	}
	return resp, nil
}

func (c *Client) decorate(req *http.Request) {
	if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Referer") != "" {
		return
	}
	host := strings.ToLower(req.URL.Hostname())
	for suffix, referer := range c.referers {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			req.Header.Set("Referer", referer)
			return
		}
	}
}

// ReadBody reads at most 8 MiB of a response body and closes it.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fault.Wrap(fault.ErrTransient, "read response", err)
	}
	return raw, nil
}
