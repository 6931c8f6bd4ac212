package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camrecd/internal/events"
)

// sseEventTypes maps SSE event names to payloads.
var sseEventTypes = map[string]any{
	"stream-state-changed": events.StreamStateChangedEvent{},
	"motion-mode-changed":  events.MotionModeChangedEvent{},
	"recording-started":    events.RecordingStartedEvent{},
	"recording-finished":   events.RecordingFinishedEvent{},
	"pipeline-message":     events.PipelineMessageEvent{},
	"live-view-toggled":    events.LiveViewToggledEvent{},
	"frame-stats":          events.FrameStatsEvent{},
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time session, motion, recording and pipeline events for all cameras",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, sseEventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		feed := events.NewFeed(s.eventBus, 32)
		events.Follow[events.StreamStateChangedEvent](feed)
		events.Follow[events.MotionModeChangedEvent](feed)
		events.Follow[events.RecordingStartedEvent](feed)
		events.Follow[events.RecordingFinishedEvent](feed)
		events.Follow[events.PipelineMessageEvent](feed)
		events.Follow[events.LiveViewToggledEvent](feed)
		events.Follow[events.FrameStatsEvent](feed)
		defer func() {
			feed.Close()
			if n := feed.Dropped(); n > 0 {
				s.logger.Debug("SSE client fell behind", "dropped", n)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-feed.C:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
