package hosts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

const imageBamSite = "https://www.imagebam.com"

// ImageBam uploads through the imagebam.com XHR uploader. A session needs
// the page's CSRF token and an upload token issued by /upload/session.
type ImageBam struct {
	client   *adapter.Client
	site     string
	logger   *slog.Logger
	sessions sessionCache[*imageBamSession]
}

type imageBamSession struct {
	client      *adapter.Client
	csrf        string
	uploadToken string
}

// NewImageBam creates the imagebam.com target. An empty site uses the
// public host.
func NewImageBam(c *adapter.Client, site string) *ImageBam {
	return &ImageBam{client: c, site: strings.TrimRight(valueOr(site, imageBamSite), "/"), logger: log.WithTarget("imagebam.com")}
}

func (b *ImageBam) Name() string { return "imagebam.com" }

type imageBamUpload struct {
	Status string `json:"status"`
	Data   []struct {
		URL   string `json:"url"`
		Thumb string `json:"thumb"`
	} `json:"data"`
	Message string `json:"message"`
}

func (b *ImageBam) Upload(ctx context.Context, filePath string, job *protocol.Job) (*adapter.Result, error) {
	user := job.Cred("imagebam_user")
	s, err := b.session(ctx, job.Creds, false)
	if err != nil {
		return nil, err
	}
	if s.csrf == "" {
		return nil, fault.Permanentf("imagebam.com page carried no csrf token")
	}

	parts := []adapter.Part{
		adapter.FilePart("files[0]", filePath),
		adapter.TextPart("_token", s.csrf),
		adapter.TextPart("data", s.uploadToken),
	}
	body, contentType := adapter.MultipartBody(ctx, parts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.site+"/upload", body)
	if err != nil {
		body.Close()
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-CSRF-TOKEN", s.csrf)
	req.Header.Set("Origin", b.site)

	var res imageBamUpload
	if err := doJSON(s.client, req, &res); err != nil {
		return nil, err
	}
	if res.Status != "success" || len(res.Data) == 0 {
		b.sessions.forget(user)
		return nil, fault.Permanentf("imagebam upload failed: %s", valueOr(res.Message, valueOr(res.Status, "empty response")))
	}
	return &adapter.Result{URL: res.Data[0].URL, Thumb: res.Data[0].Thumb}, nil
}

// Verify logs in from scratch; a session counts as valid once the site
// hands it a CSRF token.
func (b *ImageBam) Verify(ctx context.Context, creds map[string]string) error {
	if creds["imagebam_user"] == "" || creds["imagebam_pass"] == "" {
		return fault.Permanentf("imagebam.com verify requires imagebam_user and imagebam_pass")
	}
	s, err := b.session(ctx, creds, true)
	if err != nil {
		return err
	}
	if s.csrf == "" {
		return fault.Permanentf("imagebam.com login failed")
	}
	return nil
}

// ListGalleries warms the account session. imagebam has no gallery index
// to scrape, so the list is always empty.
func (b *ImageBam) ListGalleries(ctx context.Context, job *protocol.Job) ([]adapter.Gallery, error) {
	if _, err := b.session(ctx, job.Creds, false); err != nil {
		return nil, err
	}
	return []adapter.Gallery{}, nil
}

// CreateGallery hands back id 0. imagebam groups each upload session into
// its own gallery, so there is nothing to create up front.
func (b *ImageBam) CreateGallery(_ context.Context, name string, _ *protocol.Job) (*adapter.Gallery, error) {
	return &adapter.Gallery{ID: "0", Name: name}, nil
}

func (b *ImageBam) session(ctx context.Context, creds map[string]string, fresh bool) (*imageBamSession, error) {
	user := creds["imagebam_user"]
	if s, ok := b.sessions.get(user); ok && !fresh {
		return s, nil
	}

	s := &imageBamSession{client: b.client.NewSession()}
	if user != "" {
		loginPage, err := getPage(ctx, s.client, b.site+"/auth/login")
		if err != nil {
			return nil, fmt.Errorf("imagebam login page: %w", err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(loginPage))
		if err != nil {
			return nil, fault.Wrap(fault.ErrPermanent, "parse login page", err)
		}
		form := url.Values{
			"_token":   {doc.Find(`input[name="_token"]`).AttrOr("value", "")},
			"email":    {user},
			"password": {creds["imagebam_pass"]},
			"remember": {"on"},
		}
		if _, err := postForm(ctx, s.client, b.site+"/auth/login", form, nil); err != nil {
			return nil, fmt.Errorf("imagebam login: %w", err)
		}
	}

	home, err := getPage(ctx, s.client, b.site+"/")
	if err != nil {
		return nil, fmt.Errorf("imagebam home: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(home))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "parse imagebam home", err)
	}
	s.csrf = doc.Find(`meta[name="csrf-token"]`).AttrOr("content", "")

	if s.csrf != "" {
		header := http.Header{}
		header.Set("X-Requested-With", "XMLHttpRequest")
		header.Set("X-CSRF-TOKEN", s.csrf)
		form := url.Values{"content_type": {"1"}, "thumbnail_size": {"1"}}
		raw, err := postForm(ctx, s.client, b.site+"/upload/session", form, header)
		if err != nil {
			return nil, fmt.Errorf("imagebam upload session: %w", err)
		}
		var tok struct {
			Status string `json:"status"`
			Data   string `json:"data"`
		}
		if err := json.Unmarshal(raw, &tok); err == nil && tok.Status == "success" {
			s.uploadToken = tok.Data
		} else {
			b.logger.Warn("upload session not granted", "user", user)
		}
	}

	if s.csrf != "" {
		b.sessions.put(user, s)
	} else {
		b.sessions.forget(user)
	}
	b.logger.Debug("session opened", "user", user, "csrf", s.csrf != "", "upload_token", s.uploadToken != "")
	return s, nil
}
