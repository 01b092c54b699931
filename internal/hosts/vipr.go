package hosts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

const viprSite = "https://vipr.im"

var (
	viprSessPattern     = regexp.MustCompile(`name=["']sess_id["']\s+value=["']([^"']+)["']`)
	viprEndpointPattern = regexp.MustCompile(`action=["'](https?://[^/"']+/cgi-bin/upload\.cgi)`)
	viprFolderPattern   = regexp.MustCompile(`fld_id=(\d+)[^>]*>([^<]+)</a>`)
	viprImagePattern    = regexp.MustCompile(`value=['"](https?://[^'"]+/i/[^'"]+)['"]`)
	viprThumbPattern    = regexp.MustCompile(`src=['"](https?://[^'"]+/th/[^'"]+)['"]`)
)

// Vipr uploads through the vipr.im website form. The home page of a
// logged-in session carries the upload endpoint and the sess_id every
// upload must echo.
type Vipr struct {
	client   *adapter.Client
	site     string
	logger   *slog.Logger
	sessions sessionCache[*viprSession]
}

type viprSession struct {
	client   *adapter.Client
	endpoint string
	sessID   string
}

// NewVipr creates the vipr.im target. An empty site uses the public host.
func NewVipr(c *adapter.Client, site string) *Vipr {
	return &Vipr{client: c, site: strings.TrimRight(valueOr(site, viprSite), "/"), logger: log.WithTarget("vipr.im")}
}

func (v *Vipr) Name() string { return "vipr.im" }

func (v *Vipr) Upload(ctx context.Context, filePath string, job *protocol.Job) (*adapter.Result, error) {
	user := job.Cred("vipr_user")
	s, err := v.session(ctx, job.Creds, false)
	if err != nil {
		return nil, err
	}

	parts := []adapter.Part{
		adapter.FilePart("file_0", filePath),
		adapter.TextPart("upload_type", "file"),
		adapter.TextPart("sess_id", s.sessID),
		adapter.TextPart("thumb_size", job.ConfigValue("vipr_thumb")),
		adapter.TextPart("fld_id", job.ConfigValue("vipr_gal_id")),
		adapter.TextPart("tos", "1"),
		adapter.TextPart("submit_btn", "Upload"),
	}
	q := url.Values{
		"upload_id":   {strings.ReplaceAll(uuid.NewString(), "-", "")[:12]},
		"js_on":       {"1"},
		"utype":       {"reg"},
		"upload_type": {"file"},
	}

	body, contentType := adapter.MultipartBody(ctx, parts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"?"+q.Encode(), body)
	if err != nil {
		body.Close()
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	page, err := adapter.ReadBody(resp)
	if err != nil {
		return nil, err
	}

	// The upload script answers with a hand-off form that the browser
	// would post back to collect the result page.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "parse upload response", err)
	}
	if fn := doc.Find(`textarea[name="fn"]`); fn.Length() > 0 {
		form := url.Values{"op": {"upload_result"}, "fn": {fn.Text()}, "st": {"OK"}}
		if page, err = postForm(ctx, s.client, v.site+"/", form, nil); err != nil {
			return nil, fmt.Errorf("vipr upload result: %w", err)
		}
		if doc, err = goquery.NewDocumentFromReader(bytes.NewReader(page)); err != nil {
			return nil, fault.Wrap(fault.ErrPermanent, "parse upload result", err)
		}
	}

	link := doc.Find(`input[name="link_url"]`).AttrOr("value", "")
	thumb := doc.Find(`input[name="thumb_url"]`).AttrOr("value", "")
	if link == "" {
		if m := viprImagePattern.FindSubmatch(page); m != nil {
			link = string(m[1])
		}
	}
	if thumb == "" {
		if m := viprThumbPattern.FindSubmatch(page); m != nil {
			thumb = string(m[1])
		}
	}
	if link == "" || thumb == "" {
		// Most often an expired sess_id; log in again on the next attempt.
		v.sessions.forget(user)
		return nil, fault.Permanentf("vipr upload failed: no image links in response")
	}
	return &adapter.Result{URL: link, Thumb: thumb}, nil
}

// Verify logs in from scratch and succeeds when the home page hands out
// a sess_id.
func (v *Vipr) Verify(ctx context.Context, creds map[string]string) error {
	if creds["vipr_user"] == "" || creds["vipr_pass"] == "" {
		return fault.Permanentf("vipr.im verify requires vipr_user and vipr_pass")
	}
	s, err := v.session(ctx, creds, true)
	if err != nil {
		return err
	}
	if s.sessID == "" {
		return fault.Permanentf("vipr.im login failed")
	}
	return nil
}

// ListGalleries scrapes the folder links from the file manager.
func (v *Vipr) ListGalleries(ctx context.Context, job *protocol.Job) ([]adapter.Gallery, error) {
	s, err := v.account(ctx, job.Creds)
	if err != nil {
		return nil, err
	}
	page, err := getPage(ctx, s.client, v.site+"/?op=my_files")
	if err != nil {
		return nil, err
	}
	return viprFolders(page), nil
}

// CreateGallery adds a folder. The file manager page that comes back lists
// the new folder, which is where its id is read from; "0" means the folder
// was not found there.
func (v *Vipr) CreateGallery(ctx context.Context, name string, job *protocol.Job) (*adapter.Gallery, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fault.Permanentf("vipr.im gallery name is empty")
	}
	s, err := v.account(ctx, job.Creds)
	if err != nil {
		return nil, err
	}
	q := url.Values{"op": {"my_files"}, "add_folder": {name}}
	page, err := getPage(ctx, s.client, v.site+"/?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}

	g := &adapter.Gallery{ID: "0", Name: name}
	for _, f := range viprFolders(page) {
		if f.Name == name {
			g.ID = f.ID
		}
	}
	v.logger.Info("gallery created", "name", name, "fld_id", g.ID)
	return g, nil
}

// account returns a session that is actually logged in.
func (v *Vipr) account(ctx context.Context, creds map[string]string) (*viprSession, error) {
	if creds["vipr_user"] == "" {
		return nil, fault.Permanentf("vipr.im galleries require vipr_user and vipr_pass")
	}
	s, err := v.session(ctx, creds, false)
	if err != nil {
		return nil, err
	}
	if s.sessID == "" {
		return nil, fault.Permanentf("vipr.im login failed")
	}
	return s, nil
}

func (v *Vipr) session(ctx context.Context, creds map[string]string, fresh bool) (*viprSession, error) {
	user := creds["vipr_user"]
	if s, ok := v.sessions.get(user); ok && !fresh {
		return s, nil
	}

	s := &viprSession{client: v.client.NewSession()}
	if user != "" {
		form := url.Values{"op": {"login"}, "login": {user}, "password": {creds["vipr_pass"]}}
		if _, err := postForm(ctx, s.client, v.site+"/login.html", form, nil); err != nil {
			return nil, fmt.Errorf("vipr login: %w", err)
		}
	}

	home, err := getPage(ctx, s.client, v.site+"/")
	if err != nil {
		return nil, fmt.Errorf("vipr home: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(home))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "parse vipr home", err)
	}
	s.endpoint = doc.Find(`form[action*="upload.cgi"]`).AttrOr("action", "")
	s.sessID = doc.Find(`input[name="sess_id"]`).AttrOr("value", "")
	if s.sessID == "" {
		if m := viprSessPattern.FindSubmatch(home); m != nil {
			s.sessID = string(m[1])
		}
	}
	if s.endpoint == "" {
		if m := viprEndpointPattern.FindSubmatch(home); m != nil {
			s.endpoint = string(m[1])
		}
	}
	s.endpoint = resolveURL(v.site+"/", valueOr(s.endpoint, "/cgi-bin/upload.cgi"))

	if s.sessID != "" {
		v.sessions.put(user, s)
	} else {
		v.sessions.forget(user)
	}
	v.logger.Debug("session opened", "user", user, "logged_in", s.sessID != "", "endpoint", s.endpoint)
	return s, nil
}

func viprFolders(page []byte) []adapter.Gallery {
	galleries := []adapter.Gallery{}
	seen := map[string]bool{}
	add := func(id, name string) {
		name = strings.TrimSpace(name)
		if id == "" || name == "" || seen[id] {
			return
		}
		seen[id] = true
		galleries = append(galleries, adapter.Gallery{ID: id, Name: name})
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page)); err == nil {
		doc.Find(`a[href*="fld_id="]`).Each(func(_ int, s *goquery.Selection) {
			u, err := url.Parse(s.AttrOr("href", ""))
			if err != nil {
				return
			}
			add(u.Query().Get("fld_id"), s.Text())
		})
	}
	if len(galleries) == 0 {
		for _, m := range viprFolderPattern.FindAllSubmatch(page, -1) {
			add(string(m[1]), string(m[2]))
		}
	}
	return galleries
}
