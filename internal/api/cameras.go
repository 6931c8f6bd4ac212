package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camrecd/internal/api/models"
	"github.com/smazurov/camrecd/internal/session"
	"github.com/smazurov/camrecd/internal/supervisor"
)

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get the status of every configured camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		statuses := s.cameras.List()
		out := make([]models.CameraData, len(statuses))
		for i, st := range statuses {
			out[i] = toCameraData(st, time.Now())
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{index}",
		Summary:     "Get Camera",
		Description: "Get the status of one camera: state, recording, live view and motion",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIndexInput) (*models.CameraResponse, error) {
		return s.cameraResponse(input.Index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{index}/start",
		Summary:     "Start Camera",
		Description: "Build the media graph and start ingesting. An optional URI overrides the configured one.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.StartCameraRequest) (*models.CameraResponse, error) {
		if err := s.cameras.Start(ctx, input.Index, input.Body.URI); err != nil {
			return nil, mapCameraError(err)
		}
		return s.cameraResponse(input.Index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{index}/stop",
		Summary:     "Stop Camera",
		Description: "Finalize any open recording and tear down the media graph",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CameraIndexInput) (*models.CameraResponse, error) {
		if err := s.cameras.Stop(ctx, input.Index); err != nil {
			return nil, mapCameraError(err)
		}
		return s.cameraResponse(input.Index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-camera",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{index}/restart",
		Summary:     "Restart Camera",
		Description: "Stop and start the camera, optionally against a new URI",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.RestartCameraRequest) (*models.CameraResponse, error) {
		if err := s.cameras.Restart(ctx, input.Index, input.Body.URI); err != nil {
			return nil, mapCameraError(err)
		}
		return s.cameraResponse(input.Index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-camera-recording",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{index}/recording",
		Summary:     "Set Recording",
		Description: "Open or close the recording gate. A request for an idle camera applies when it starts.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.ToggleRequest) (*models.CameraResponse, error) {
		if err := s.cameras.SetRecordingActive(ctx, input.Index, input.Body.Enabled); err != nil {
			return nil, mapCameraError(err)
		}
		return s.cameraResponse(input.Index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-camera-live-view",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{index}/live",
		Summary:     "Set Live View",
		Description: "Enable or disable frame delivery to the live view. Detection and recording are unaffected.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.ToggleRequest) (*models.CameraResponse, error) {
		if err := s.cameras.SetLiveViewEnabled(input.Index, input.Body.Enabled); err != nil {
			return nil, mapCameraError(err)
		}
		return s.cameraResponse(input.Index)
	})
}

func (s *Server) cameraResponse(index int) (*models.CameraResponse, error) {
	st, err := s.cameras.Status(index)
	if err != nil {
		return nil, mapCameraError(err)
	}
	return &models.CameraResponse{Body: toCameraData(st, time.Now())}, nil
}

func toCameraData(st session.Status, now time.Time) models.CameraData {
	data := models.CameraData{
		Index:           st.Index,
		Name:            st.Name,
		State:           string(st.State),
		URI:             st.URI,
		Recording:       st.Recording,
		RecordingWanted: st.RecordingWanted,
		RecordingID:     st.RecordingID,
		RecordingPath:   st.RecordingPath,
		LiveView:        st.LiveView,
		Mode:            st.Mode.String(),
		MotionPercent:   st.MotionPercent,
		LiveFrames:      st.LiveFrames,
		SkippedFrames:   st.SkippedFrames,
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		data.StartedAt = &started
		data.Uptime = now.Sub(started).Truncate(time.Second).String()
	}
	if st.LastError != nil {
		data.LastError = st.LastError.Error()
	}
	return data
}

// mapCameraError maps supervisor error codes to HTTP errors.
func mapCameraError(err error) error {
	var se *supervisor.Error
	if !errors.As(err, &se) {
		return huma.Error500InternalServerError("internal server error", err)
	}
	switch se.Code {
	case supervisor.ErrCodeCameraNotFound:
		return huma.Error404NotFound(se.Message, err)
	case supervisor.ErrCodeAlreadyRunning, supervisor.ErrCodeNotRunning:
		return huma.Error409Conflict(se.Message, err)
	case supervisor.ErrCodeInvalidParams:
		return huma.Error400BadRequest(se.Message, err)
	default:
		return huma.Error500InternalServerError(se.Message, err)
	}
}
