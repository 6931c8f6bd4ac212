package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smazurov/camrecd/internal/logging"
)

// HTTPLoggingMiddleware logs each request at a level chosen by its status.
// Streaming endpoints log once the stream ends.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if id := middleware.GetReqID(ctx.Context()); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	next(ctx)

	status := ctx.Status()
	attrs = append(attrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case ctx.Method() == "GET" && isPolling(ctx.URL().Path):
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}

// isPolling matches endpoints UIs hit on a timer.
func isPolling(path string) bool {
	switch path {
	case "/api/health", "/api/cameras":
		return true
	}
	return strings.HasSuffix(path, "/snapshot")
}
