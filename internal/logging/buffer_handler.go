package logging

import (
	"context"
	"log/slog"
	"maps"
	"time"
)

// LogCallback is called when a new log entry is written.
type LogCallback func(entry LogEntry)

// BufferHandler captures records into the process ring buffer and hands
// each stored entry to the registered callback. Records logged before
// Initialize are dropped.
type BufferHandler struct {
	level  slog.Leveler
	module string
	prefix string
	preset map[string]any
}

// NewBufferHandler creates a buffer handler at the given level.
func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{level: level, module: "app"}
}

func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	buffer, callback := std.sink()
	if buffer == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     h.module,
		Message:    r.Message,
		Attributes: maps.Clone(h.preset),
	}
	if entry.Attributes == nil {
		entry.Attributes = make(map[string]any, r.NumAttrs())
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == "module" {
			entry.Module = a.Value.String()
		} else {
			put(entry.Attributes, h.prefix, a)
		}
		return true
	})

	entry = buffer.Write(entry)
	if callback != nil {
		callback(entry)
	}
	return nil
}

// WithAttrs resolves attrs once so Handle only copies them.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = maps.Clone(h.preset)
	if next.preset == nil {
		next.preset = make(map[string]any, len(attrs))
	}
	for _, a := range attrs {
		if h.prefix == "" && a.Key == "module" {
			next.module = a.Value.String()
			continue
		}
		put(next.preset, h.prefix, a)
	}
	return &next
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// put stores a under prefix+key, expanding groups into dotted keys.
func put(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		if a.Key != "" {
			key += "."
		}
		for _, ga := range v.Group() {
			put(dst, key, ga)
		}
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = v.Any()
	default:
		dst[key] = v.Any()
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	}
	return "error"
}
