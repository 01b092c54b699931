package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

const turboSite = "https://www.turboimagehost.com"

var (
	turboEndpointPattern = regexp.MustCompile(`endpoint:\s*'([^']+)'`)
	turboBBCodePattern   = regexp.MustCompile(`(?i)\[url=["']?(https?://[^"'\]]+)["']?\]\s*\[img\](https?://[^\[]+)\[/img\]\s*\[/url\]`)
)

// Turbo uploads to turboimagehost through its fine-uploader endpoint,
// which the home page announces in an inline script.
type Turbo struct {
	client   *adapter.Client
	site     string
	logger   *slog.Logger
	sessions sessionCache[*turboSession]
}

type turboSession struct {
	client   *adapter.Client
	endpoint string
}

// NewTurbo creates the turboimagehost target. An empty site uses the
// public host.
func NewTurbo(c *adapter.Client, site string) *Turbo {
	return &Turbo{client: c, site: strings.TrimRight(valueOr(site, turboSite), "/"), logger: log.WithTarget("turboimagehost")}
}

func (t *Turbo) Name() string { return "turboimagehost" }

type turboUpload struct {
	Success bool   `json:"success"`
	NewURL  string `json:"newUrl"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

func (t *Turbo) Upload(ctx context.Context, filePath string, job *protocol.Job) (*adapter.Result, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "stat file", err)
	}
	s, err := t.session(ctx, job.Creds, false)
	if err != nil {
		return nil, err
	}
	endpoint := valueOr(s.endpoint, t.site+"/upload_html5.tu")

	name := filepath.Base(filePath)
	parts := []adapter.Part{
		adapter.FilePart("qqfile", filePath),
		adapter.TextPart("qquuid", uuid.NewString()),
		adapter.TextPart("qqfilename", name),
		adapter.TextPart("qqtotalfilesize", strconv.FormatInt(info.Size(), 10)),
		adapter.TextPart("imcontent", job.ConfigValue("turbo_content")),
		adapter.TextPart("thumb_size", job.ConfigValue("turbo_thumb")),
	}
	body, contentType := adapter.MultipartBody(ctx, parts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		body.Close()
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	var res turboUpload
	if err := doJSON(s.client, req, &res); err != nil {
		return nil, err
	}
	switch {
	case !res.Success:
		t.sessions.forget(job.Cred("turbo_user"))
		return nil, fault.Permanentf("turbo upload failed: %s", valueOr(res.Error, "success=false"))
	case res.NewURL != "":
		link, thumb, err := t.scrapeBBCode(ctx, s.client, res.NewURL)
		if err != nil {
			t.logger.Warn("bbcode scrape failed, using viewer url", "url", res.NewURL, "error", err)
			return &adapter.Result{URL: res.NewURL, Thumb: res.NewURL}, nil
		}
		return &adapter.Result{URL: link, Thumb: thumb}, nil
	case res.ID != "":
		u := fmt.Sprintf("%s/p/%s/%s.html", t.site, url.PathEscape(res.ID), url.PathEscape(name))
		return &adapter.Result{URL: u, Thumb: u}, nil
	default:
		return nil, fault.Permanentf("turbo upload returned neither newUrl nor id")
	}
}

func (t *Turbo) scrapeBBCode(ctx context.Context, c *adapter.Client, viewerURL string) (string, string, error) {
	page, err := getPage(ctx, c, viewerURL)
	if err != nil {
		return "", "", err
	}
	m := turboBBCodePattern.FindSubmatch(page)
	if m == nil {
		return "", "", fmt.Errorf("no bbcode on viewer page")
	}
	return string(m[1]), strings.TrimSpace(string(m[2])), nil
}

// Verify opens a fresh session, logging in when turbo_user is set, and
// succeeds once the home page announces an upload endpoint.
func (t *Turbo) Verify(ctx context.Context, creds map[string]string) error {
	s, err := t.session(ctx, creds, true)
	if err != nil {
		return err
	}
	if s.endpoint == "" {
		return fault.Permanentf("turboimagehost login failed: no upload endpoint on home page")
	}
	return nil
}

func (t *Turbo) session(ctx context.Context, creds map[string]string, fresh bool) (*turboSession, error) {
	user := creds["turbo_user"]
	if s, ok := t.sessions.get(user); ok && !fresh {
		return s, nil
	}

	s := &turboSession{client: t.client.NewSession()}
	if user != "" {
		form := url.Values{"username": {user}, "password": {creds["turbo_pass"]}, "login": {"Login"}}
		if _, err := postForm(ctx, s.client, t.site+"/login", form, nil); err != nil {
			return nil, fmt.Errorf("turbo login: %w", err)
		}
	}

	home, err := getPage(ctx, s.client, t.site+"/")
	if err != nil {
		return nil, fmt.Errorf("turbo home: %w", err)
	}
	if m := turboEndpointPattern.FindSubmatch(home); m != nil {
		s.endpoint = resolveURL(t.site+"/", string(m[1]))
	}

	if s.endpoint != "" {
		t.sessions.put(user, s)
	} else {
		t.sessions.forget(user)
	}
	t.logger.Debug("session opened", "user", user, "endpoint", s.endpoint)
	return s, nil
}
