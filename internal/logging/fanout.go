package logging

import (
	"context"
	"errors"
	"log/slog"
)

// fanout delivers each record to every member enabled for its level.
type fanout []slog.Handler

// Fanout combines handlers into one. Nested fanouts are flattened and a
// single handler is returned unwrapped.
func Fanout(handlers ...slog.Handler) slog.Handler {
	var flat fanout
	for _, h := range handlers {
		switch v := h.(type) {
		case nil:
		case fanout:
			flat = append(flat, v...)
		default:
			flat = append(flat, v)
		}
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return flat
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle keeps going after a member fails and reports every failure.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
