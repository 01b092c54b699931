package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattjoyce/uploader/internal/protocol"
)

// EventHandler is a slog.Handler that writes each record as a log event
// through the protocol emitter, so diagnostics share the stream the host
// is already draining.
type EventHandler struct {
	emitter protocol.Emitter
	level   slog.Leveler
	attrs   []slog.Attr
	prefix  string
}

// NewEventHandler creates an EventHandler emitting records at or above level.
func NewEventHandler(emitter protocol.Emitter, level slog.Leveler) *EventHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &EventHandler{emitter: emitter, level: level}
}

func (h *EventHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *EventHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(data, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(data, h.prefix, a)
		return true
	})
	h.emitter.Emit(protocol.LogEvent(r.Level.String(), r.Message, data))
	return nil
}

func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *EventHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			addAttr(dst, groupPrefix, ga)
		}
		return
	}
	dst[prefix+a.Key] = attrValue(a.Value)
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
