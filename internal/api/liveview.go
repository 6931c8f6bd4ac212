package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camrecd/internal/api/models"
	"github.com/smazurov/camrecd/internal/liveview"
)

func (s *Server) registerLiveViewRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{index}/snapshot",
		Summary:     "Camera Snapshot",
		Description: "Latest live frame as JPEG. Requires live view to be enabled.",
		Tags:        []string{"live"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
		Responses: map[string]*huma.Response{
			"200": {
				Description: "JPEG image",
				Content:     map[string]*huma.MediaType{"image/jpeg": {}},
			},
		},
	}, func(_ context.Context, input *models.CameraIndexInput) (*models.SnapshotResponse, error) {
		if err := s.requireFrames(input.Index); err != nil {
			return nil, err
		}
		img, err := s.frames.Snapshot(input.Index)
		if errors.Is(err, liveview.ErrNoFrame) {
			return nil, huma.Error404NotFound("no live frame available")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to encode snapshot", err)
		}
		return &models.SnapshotResponse{
			ContentType:  "image/jpeg",
			CacheControl: "no-store",
			Body:         img,
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-mjpeg",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{index}/mjpeg",
		Summary:     "Camera MJPEG Stream",
		Description: "Live frames as a multipart MJPEG stream",
		Tags:        []string{"live"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
		Responses: map[string]*huma.Response{
			"200": {
				Description: "MJPEG stream",
				Content:     map[string]*huma.MediaType{liveview.ContentType: {}},
			},
		},
	}, func(_ context.Context, input *models.CameraIndexInput) (*huma.StreamResponse, error) {
		if err := s.requireFrames(input.Index); err != nil {
			return nil, err
		}
		index := input.Index
		return &huma.StreamResponse{
			Body: func(ctx huma.Context) {
				ctx.SetHeader("Content-Type", liveview.ContentType)
				ctx.SetHeader("Cache-Control", "no-store")
				w := ctx.BodyWriter()
				var flush func()
				if rw, ok := w.(http.ResponseWriter); ok {
					rc := http.NewResponseController(rw)
					flush = func() { _ = rc.Flush() }
				}
				if err := s.frames.StreamMJPEG(ctx.Context(), index, w, flush); err != nil {
					s.logger.Debug("MJPEG stream ended", "index", index, "error", err)
				}
			},
		}, nil
	})
}

// requireFrames fails for unknown cameras or when no frame source is wired.
func (s *Server) requireFrames(index int) error {
	if _, err := s.cameras.Status(index); err != nil {
		return mapCameraError(err)
	}
	if s.frames == nil {
		return huma.Error404NotFound("live view is not available")
	}
	return nil
}
