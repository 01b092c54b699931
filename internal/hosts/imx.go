package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

const (
	imxAPI  = "https://api.imx.to/v1/upload.php"
	imxSite = "https://imx.to"
)

var bbcodePattern = regexp.MustCompile(`\[url=([^\]]+)\]\[img\]([^\[]+)\[/img\]\[/url\]`)

// Imx uploads to imx.to with an API key. Gallery management goes through
// the website and needs a username and password.
type Imx struct {
	client *adapter.Client
	api    string
	site   string
	logger *slog.Logger
}

// NewImx creates the imx.to target. Empty api or site use the public hosts.
func NewImx(c *adapter.Client, api, site string) *Imx {
	if api == "" {
		api = imxAPI
	}
	if site == "" {
		site = imxSite
	}
	return &Imx{client: c, api: api, site: strings.TrimRight(site, "/"), logger: log.WithTarget("imx.to")}
}

func (x *Imx) Name() string { return "imx.to" }

type imxUpload struct {
	Status string `json:"status"`
	Data   struct {
		ImageURL     string `json:"image_url"`
		ThumbnailURL string `json:"thumbnail_url"`
	} `json:"data"`
	Message string `json:"message"`
}

func (x *Imx) Upload(ctx context.Context, filePath string, job *protocol.Job) (*adapter.Result, error) {
	key := job.Cred("api_key")
	if key == "" {
		return nil, fault.Permanentf("imx.to upload requires api_key")
	}

	sizeID := imxSizeID(job.ConfigValue("imx_thumb_id"))
	parts := []adapter.Part{
		adapter.FilePart("image", filePath),
		adapter.TextPart("format", "json"),
		adapter.TextPart("adult", "1"),
		adapter.TextPart("upload_type", "file"),
		adapter.TextPart("simple_upload", "Upload"),
		adapter.TextPart("thumbnail_size", sizeID),
		adapter.TextPart("thumb_size_container", sizeID),
		adapter.TextPart("thumbnail_format", imxFormatID(job.ConfigValue("imx_format_id"))),
	}
	if gid := job.ConfigValue("gallery_id"); gid != "" {
		parts = append(parts, adapter.TextPart("gallery_id", gid))
	}

	body, contentType := adapter.MultipartBody(ctx, parts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.api, body)
	if err != nil {
		body.Close()
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-KEY", key)

	var res imxUpload
	if err := doJSON(x.client, req, &res); err != nil {
		return nil, err
	}
	if res.Status != "success" {
		return nil, fault.Permanentf("imx upload failed: %s", valueOr(res.Message, res.Status))
	}

	viewer, thumb := res.Data.ImageURL, res.Data.ThumbnailURL
	if viewer != "" {
		if v, th, err := x.scrapeBBCode(ctx, viewer); err != nil {
			x.logger.Warn("bbcode scrape failed, keeping api urls", "url", viewer, "error", err)
		} else if th != "" {
			viewer, thumb = v, th
		}
	}
	if viewer == "" {
		return nil, fault.Permanentf("imx upload returned no image_url")
	}
	return &adapter.Result{URL: viewer, Thumb: thumb}, nil
}

// scrapeBBCode reads the viewer page and picks the BBCode block that looks
// most like the thumbnail embed.
func (x *Imx) scrapeBBCode(ctx context.Context, viewerURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewerURL, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("parse viewer page: %w", err)
	}

	best, bestScore := "", -1<<31
	doc.Find("textarea, input[type='text']").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			text = strings.TrimSpace(s.AttrOr("value", ""))
		}
		if !strings.Contains(text, "[url=") || !strings.Contains(text, "[img]") {
			return
		}
		if score := bbcodeScore(s, text) - i; score > bestScore {
			best, bestScore = text, score
		}
	})
	if best == "" {
		return "", "", fmt.Errorf("no bbcode on viewer page")
	}

	m := bbcodePattern.FindStringSubmatch(best)
	if len(m) < 3 {
		return "", "", fmt.Errorf("unparseable bbcode %q", best)
	}
	return m[1], m[2], nil
}

func bbcodeScore(s *goquery.Selection, text string) int {
	label := strings.ToLower(strings.Join([]string{
		s.Prev().Text(),
		s.Parent().Prev().Text(),
		s.Parent().Parent().Prev().Text(),
	}, " "))

	score := 0
	switch {
	case strings.Contains(label, "thumb"):
		score += 50
	case strings.Contains(label, "hotlink"), strings.Contains(label, "full"):
		score -= 50
	}
	switch {
	case strings.Contains(text, "/u/t/"), strings.Contains(text, "_t"):
		score += 100
	case strings.Contains(text, "/u/i/"):
		score -= 20
	}
	return score
}

// Verify only checks that an API key is present; imx has no cheap
// endpoint to validate it.
func (x *Imx) Verify(_ context.Context, creds map[string]string) error {
	if strings.TrimSpace(creds["api_key"]) == "" {
		return fault.Permanentf("imx.to api_key missing")
	}
	return nil
}

// ListGalleries logs in to the website and scrapes the gallery index.
func (x *Imx) ListGalleries(ctx context.Context, job *protocol.Job) ([]adapter.Gallery, error) {
	session, err := x.login(ctx, job.Creds)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.site+"/user/galleries", nil)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	resp, err := session.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "parse gallery list", err)
	}

	galleries := []adapter.Gallery{}
	seen := map[string]bool{}
	doc.Find(`a[href*="/g/"]`).Each(func(_ int, s *goquery.Selection) {
		_, rest, ok := strings.Cut(s.AttrOr("href", ""), "/g/")
		if !ok {
			return
		}
		id, _, _ := strings.Cut(rest, "?")
		id, _, _ = strings.Cut(id, "/")
		name := strings.TrimSpace(s.Find("i").Text())
		if id == "" || name == "" || seen[id] {
			return
		}
		seen[id] = true
		galleries = append(galleries, adapter.Gallery{ID: id, Name: name})
	})
	return galleries, nil
}

// CreateGallery adds a public gallery and reads its id from the redirect.
func (x *Imx) CreateGallery(ctx context.Context, name string, job *protocol.Job) (*adapter.Gallery, error) {
	session, err := x.login(ctx, job.Creds)
	if err != nil {
		return nil, err
	}

	form := url.Values{"name": {name}, "public": {"1"}, "submit": {"Save"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.site+"/user/gallery/add", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := session.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	id := resp.Request.URL.Query().Get("id")
	if id == "" {
		id = "0"
	}
	return &adapter.Gallery{ID: id, Name: name}, nil
}

func (x *Imx) login(ctx context.Context, creds map[string]string) (*adapter.Client, error) {
	user := valueOr(creds["imx_user"], creds["vipr_user"])
	pass := valueOr(creds["imx_pass"], creds["vipr_pass"])
	if user == "" || pass == "" {
		return nil, fault.Permanentf("imx.to gallery access requires imx_user and imx_pass")
	}

	session := x.client.NewSession()
	form := url.Values{
		"op":       {"login"},
		"login":    {user},
		"password": {pass},
		"redirect": {x.site + "/user/galleries"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.site+"/login.html", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := session.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imx login: %w", err)
	}
	resp.Body.Close()
	return session, nil
}

func imxSizeID(s string) string {
	switch s {
	case "100":
		return "1"
	case "150":
		return "6"
	case "180":
		return "2"
	case "250":
		return "3"
	case "300":
		return "4"
	default:
		return "2"
	}
}

func imxFormatID(s string) string {
	switch s {
	case "Fixed Width":
		return "1"
	case "Fixed Height":
		return "4"
	case "Proportional":
		return "2"
	case "Square":
		return "3"
	default:
		return "1"
	}
}
