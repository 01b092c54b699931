package hosts

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
)

// sessionCache keeps one logged-in session per account name. An empty
// name is the anonymous session.
type sessionCache[T any] struct {
	mu    sync.Mutex
	byKey map[string]T
}

func (c *sessionCache[T]) get(user string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byKey[user]
	return s, ok
}

func (c *sessionCache[T]) put(user string, s T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byKey == nil {
		c.byKey = make(map[string]T)
	}
	c.byKey[user] = s
}

func (c *sessionCache[T]) forget(user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byKey, user)
}

// getPage fetches rawURL and returns the body.
func getPage(ctx context.Context, c *adapter.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return adapter.ReadBody(resp)
}

// postForm submits a urlencoded form and returns the body.
func postForm(ctx context.Context, c *adapter.Client, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	return adapter.ReadBody(resp)
}

// resolveURL makes ref absolute against base. Pages scraped for upload
// endpoints may carry either form.
func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
