package adapter

import (
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Expand replaces {key} placeholders with values. Unknown keys are left
// as written, so a template can be expanded again later.
func Expand(tmpl string, values map[string]string) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		if v, ok := values[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// ExpandJSON replaces {path} placeholders with values looked up in
// decoded JSON. extra is consulted first. Empty results leave the
// placeholder in place.
func ExpandJSON(tmpl string, data any, extra map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if v, ok := extra[key]; ok && v != "" {
			return v
		}
		if v, ok := Lookup(data, key); ok && v != "" {
			return v
		}
		return m
	})
}

// Lookup walks a dot path such as "data.images.0.url" through decoded
// JSON and renders the leaf as a string. Objects and arrays do not render.
func Lookup(data any, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	cur := data
	for _, part := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return "", false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return "", false
			}
			cur = v[i]
		default:
			return "", false
		}
	}

	switch v := cur.(type) {
	case string:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// merge returns a new map holding base overlaid with over.
func merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
