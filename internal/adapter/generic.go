package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
)

// GenericName is the registry name of the http_upload runner.
const GenericName = "http"

// maxPreRequestSteps bounds follow_up_request chains.
const maxPreRequestSteps = 8

// Generic uploads files according to the HTTPSpec carried by the job.
type Generic struct {
	client *Client
	logger *slog.Logger
}

// NewGeneric creates the http_upload runner on top of c.
func NewGeneric(c *Client) *Generic {
	return &Generic{client: c, logger: log.WithComponent("http_upload")}
}

func (g *Generic) Name() string { return GenericName }

// Upload runs the optional pre-request chain, streams the multipart body
// and parses the response.
func (g *Generic) Upload(ctx context.Context, filePath string, job *protocol.Job) (*Result, error) {
	spec := job.HTTPSpec
	if spec == nil {
		return nil, fault.Permanentf("http_upload without http_spec")
	}
	if strings.TrimSpace(spec.URL) == "" {
		return nil, fault.Permanentf("http_spec.url is empty")
	}

	client := g.client
	values := merge(job.Config, nil)
	extracted := map[string]string{}

	if spec.PreRequest != nil {
		var err error
		extracted, client, err = g.runPreRequests(ctx, spec.PreRequest, values)
		if err != nil {
			return nil, err
		}
		values = merge(values, extracted)
	}

	body, contentType, err := buildBody(ctx, spec, filePath, values, extracted)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, Expand(spec.URL, values), body)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, fault.Wrap(fault.ErrPermanent, "build upload request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, Expand(v, values))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	raw, err := ReadBody(resp)
	if err != nil {
		return nil, err
	}

	urlStr, thumb, err := ParseResponse(raw, spec.ResponseParser, filePath)
	if err != nil {
		return nil, err
	}
	return &Result{URL: urlStr, Thumb: thumb}, nil
}

// runPreRequests executes the chain in order. Once a step asks for cookies
// every later step and the upload itself share that session.
func (g *Generic) runPreRequests(ctx context.Context, first *protocol.PreRequest, base map[string]string) (map[string]string, *Client, error) {
	client := g.client
	extracted := map[string]string{}
	session := false

	step := first
	for i := 0; step != nil; i++ {
		if i >= maxPreRequestSteps {
			return nil, nil, fault.Permanentf("pre-request chain longer than %d steps", maxPreRequestSteps)
		}
		if step.UseCookies && !session {
			client = client.NewSession()
			session = true
		}

		label := step.Action
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		values, err := g.preRequest(ctx, client, step, merge(base, extracted))
		if err != nil {
			return nil, nil, fmt.Errorf("pre-request %s: %w", label, err)
		}
		for k, v := range values {
			extracted[k] = v
		}
		g.logger.Debug("pre-request completed", "step", label, "extracted", len(values), "cookies", session)
		step = step.FollowUpRequest
	}
	return extracted, client, nil
}

func (g *Generic) preRequest(ctx context.Context, client *Client, step *protocol.PreRequest, values map[string]string) (map[string]string, error) {
	if timeout := client.PreRequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if len(step.FormFields) > 0 {
		form := url.Values{}
		for k, v := range step.FormFields {
			form.Set(k, Expand(v, values))
		}
		body = strings.NewReader(form.Encode())
	}

	method := strings.ToUpper(strings.TrimSpace(step.Method))
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, Expand(step.URL, values), body)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range step.Headers {
		req.Header.Set(k, Expand(v, values))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	raw, err := ReadBody(resp)
	if err != nil {
		return nil, err
	}
	return Extract(step.ResponseType, raw, step.ExtractFields)
}

func buildBody(ctx context.Context, spec *protocol.HTTPSpec, filePath string, values, extracted map[string]string) (io.ReadCloser, string, error) {
	if len(spec.MultipartFields) > 0 {
		names := make([]string, 0, len(spec.MultipartFields))
		for name := range spec.MultipartFields {
			names = append(names, name)
		}
		sort.Strings(names)

		parts := make([]Part, 0, len(names))
		for _, name := range names {
			field := spec.MultipartFields[name]
			switch strings.ToLower(field.Type) {
			case protocol.FieldFile:
				parts = append(parts, FilePart(name, filePath))
			case protocol.FieldText, "":
				parts = append(parts, TextPart(name, field.Value))
			case protocol.FieldTemplate:
				parts = append(parts, TextPart(name, Expand(field.Value, values)))
			case protocol.FieldDynamic:
				v, ok := extracted[field.Value]
				if !ok {
					return nil, "", fault.Permanentf("dynamic field %s references unknown extracted value %q", name, field.Value)
				}
				parts = append(parts, TextPart(name, v))
			default:
				return nil, "", fault.Permanentf("multipart field %s has unknown type %q", name, field.Type)
			}
		}
		body, ct := MultipartBody(ctx, parts)
		return body, ct, nil
	}

	if len(spec.FormFields) > 0 {
		form := url.Values{}
		for k, v := range spec.FormFields {
			form.Set(k, Expand(v, values))
		}
		return io.NopCloser(strings.NewReader(form.Encode())), "application/x-www-form-urlencoded", nil
	}
	return nil, "", nil
}

// ParseResponse pulls the viewer and thumbnail URLs out of an upload
// response. {filename} in url/thumb templates is the uploaded file's base name.
func ParseResponse(raw []byte, parser protocol.ResponseParser, filePath string) (string, string, error) {
	extra := map[string]string{"filename": filepath.Base(filePath)}

	switch strings.ToLower(parser.Type) {
	case "json", "":
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return "", "", fault.Wrap(fault.ErrPermanent, "parse upload response", err)
		}
		if parser.StatusPath != "" {
			status, _ := Lookup(data, parser.StatusPath)
			if status != parser.SuccessValue {
				return "", "", fault.Permanentf("%s", failureMessage(data, status))
			}
		}
		urlStr, _ := Lookup(data, parser.URLPath)
		thumb, _ := Lookup(data, parser.ThumbPath)
		return finish(urlStr, thumb, parser, data, extra)

	case "html":
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
		if err != nil {
			return "", "", fault.Wrap(fault.ErrPermanent, "parse upload response", err)
		}
		var urlStr, thumb string
		if parser.URLPath != "" {
			urlStr = SelectionValue(doc.Find(parser.URLPath).First(), "value", "href")
		}
		if parser.ThumbPath != "" {
			thumb = SelectionValue(doc.Find(parser.ThumbPath).First(), "value", "src")
		}
		return finish(urlStr, thumb, parser, nil, extra)

	default:
		return "", "", fault.Permanentf("unsupported response parser type %q", parser.Type)
	}
}

func finish(urlStr, thumb string, parser protocol.ResponseParser, data any, extra map[string]string) (string, string, error) {
	if parser.URLTemplate != "" {
		urlStr = ExpandJSON(parser.URLTemplate, data, extra)
	}
	if parser.ThumbTemplate != "" {
		thumb = ExpandJSON(parser.ThumbTemplate, data, extra)
	} else if parser.URLTemplate != "" && thumb == "" {
		thumb = urlStr
	}
	if urlStr == "" {
		return "", "", fault.Permanentf("no URL found in response at %q", parser.URLPath)
	}
	return urlStr, thumb, nil
}

func failureMessage(data any, status string) string {
	for _, key := range []string{"message", "error", "error_msg"} {
		if msg, ok := Lookup(data, key); ok && msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("upload failed with status: %s", status)
}
