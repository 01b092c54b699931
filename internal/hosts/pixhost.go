package hosts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

const pixhostAPI = "https://api.pixhost.to"

// Pixhost uploads through the public pixhost.to JSON API. No account is
// needed; galleries are addressed by a hash pair returned on creation.
type Pixhost struct {
	client *adapter.Client
	api    string
	logger *slog.Logger
}

// NewPixhost creates the pixhost.to target. An empty api uses the public
// endpoint.
func NewPixhost(c *adapter.Client, api string) *Pixhost {
	if api == "" {
		api = pixhostAPI
	}
	return &Pixhost{client: c, api: strings.TrimRight(api, "/"), logger: log.WithTarget("pixhost.to")}
}

func (p *Pixhost) Name() string { return "pixhost.to" }

type pixhostUpload struct {
	ShowURL  string `json:"show_url"`
	ThumbURL string `json:"th_url"`
	ErrorMsg string `json:"error_msg"`
}

func (p *Pixhost) Upload(ctx context.Context, filePath string, job *protocol.Job) (*adapter.Result, error) {
	parts := []adapter.Part{
		adapter.FilePart("img", filePath),
		adapter.TextPart("content_type", valueOr(job.ConfigValue("pix_content"), "0")),
		adapter.TextPart("max_th_size", valueOr(job.ConfigValue("pix_thumb"), "200")),
	}
	if h := job.ConfigValue("pix_gallery_hash"); h != "" {
		parts = append(parts, adapter.TextPart("gallery_hash", h))
	}

	body, contentType := adapter.MultipartBody(ctx, parts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.api+"/images", body)
	if err != nil {
		body.Close()
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	var res pixhostUpload
	if err := doJSON(p.client, req, &res); err != nil {
		return nil, err
	}
	if res.ShowURL == "" {
		return nil, fault.Permanentf("pixhost upload failed: %s", valueOr(res.ErrorMsg, "no show_url in response"))
	}
	return &adapter.Result{URL: res.ShowURL, Thumb: res.ThumbURL}, nil
}

// CreateGallery opens a gallery. The returned Extra carries both hashes;
// uploads go in with gallery_hash and finalization needs the upload hash.
func (p *Pixhost) CreateGallery(ctx context.Context, name string, job *protocol.Job) (*adapter.Gallery, error) {
	form := url.Values{"title": {name}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.api+"/galleries", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var res struct {
		GalleryHash       string `json:"gallery_hash"`
		GalleryUploadHash string `json:"gallery_upload_hash"`
	}
	if err := doJSON(p.client, req, &res); err != nil {
		return nil, fmt.Errorf("create gallery: %w", err)
	}
	if res.GalleryHash == "" {
		return nil, fault.Permanentf("gallery creation returned empty gallery_hash")
	}

	p.logger.Info("gallery created", "gallery_hash", res.GalleryHash)
	return &adapter.Gallery{
		ID:   res.GalleryHash,
		Name: name,
		Extra: map[string]string{
			"gallery_hash":        res.GalleryHash,
			"gallery_upload_hash": res.GalleryUploadHash,
		},
	}, nil
}

// FinalizeGallery closes a gallery with a PATCH. A non-2xx answer only
// logs a warning: the gallery is usable either way.
func (p *Pixhost) FinalizeGallery(ctx context.Context, handle string, job *protocol.Job) error {
	galleryHash := valueOr(handle, job.ConfigValue("gallery_hash"))
	uploadHash := job.ConfigValue("gallery_upload_hash")
	if galleryHash == "" || uploadHash == "" {
		return fault.Permanentf("missing gallery hashes for finalization")
	}

	endpoint := fmt.Sprintf("%s/galleries/%s/%s", p.api, url.PathEscape(galleryHash), url.PathEscape(uploadHash))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, nil)
	if err != nil {
		return fault.Wrap(fault.ErrPermanent, "build request", err)
	}

	resp, err := p.client.DoRaw(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("gallery finalization returned non-success status",
			"gallery_hash", galleryHash, "status_code", resp.StatusCode)
		return nil
	}
	p.logger.Info("gallery finalized", "gallery_hash", galleryHash)
	return nil
}

// Verify always succeeds; pixhost has no accounts.
func (p *Pixhost) Verify(context.Context, map[string]string) error {
	return nil
}

func doJSON(c *adapter.Client, req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	raw, err := adapter.ReadBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fault.Wrap(fault.ErrPermanent, "decode response", err)
	}
	return nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
