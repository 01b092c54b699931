package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mattjoyce/uploader/internal/fault"
)

const regexPrefix = "regex:"

// ExtractHTML evaluates each selector against an HTML body. A selector
// with the "regex:" prefix returns the first capture group of the raw body;
// anything else is a CSS selector whose value, content or action attribute
// is used, falling back to the element text.
func ExtractHTML(body []byte, selectors map[string]string) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "parse html", err)
	}

	out := make(map[string]string, len(selectors))
	for name, sel := range selectors {
		if pattern, ok := strings.CutPrefix(sel, regexPrefix); ok {
			v, err := regexValue(body, pattern)
			if err != nil {
				return nil, err
			}
			out[name] = v
			continue
		}
		out[name] = SelectionValue(doc.Find(sel).First(), "value", "content", "action")
	}
	return out, nil
}

// ExtractJSON resolves each dot path against a JSON body. "regex:" works
// here too and runs against the raw text.
func ExtractJSON(body []byte, paths map[string]string) (map[string]string, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fault.Wrap(fault.ErrPermanent, "parse json", err)
	}

	out := make(map[string]string, len(paths))
	for name, path := range paths {
		if pattern, ok := strings.CutPrefix(path, regexPrefix); ok {
			v, err := regexValue(body, pattern)
			if err != nil {
				return nil, err
			}
			out[name] = v
			continue
		}
		v, _ := Lookup(data, path)
		out[name] = v
	}
	return out, nil
}

// SelectionValue returns the first non-empty attribute of s in order,
// then its trimmed text.
func SelectionValue(s *goquery.Selection, attrs ...string) string {
	for _, attr := range attrs {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return strings.TrimSpace(s.Text())
}

func regexValue(body []byte, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fault.Permanentf("bad extract pattern %q: %v", pattern, err)
	}
	m := re.FindSubmatch(body)
	if len(m) < 2 {
		return "", nil
	}
	return strings.TrimSpace(string(m[1])), nil
}

// Extract dispatches on responseType ("json" or "html"; html is the default).
func Extract(responseType string, body []byte, fields map[string]string) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	switch strings.ToLower(responseType) {
	case "json":
		return ExtractJSON(body, fields)
	case "html", "":
		return ExtractHTML(body, fields)
	default:
		return nil, fault.Wrap(fault.ErrPermanent, fmt.Sprintf("unknown response type %q", responseType), nil)
	}
}
