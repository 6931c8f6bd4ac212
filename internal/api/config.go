package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camrecd/internal/api/models"
	"github.com/smazurov/camrecd/internal/cameras"
)

// ConfigStore persists camera settings. Writes land in cameras.toml and
// reach running sessions through the file watcher and reconcile.
type ConfigStore interface {
	Get(index int) (cameras.Settings, error)
	Add(settings cameras.Settings) (int, error)
	SetURI(index int, uri string) error
	SetEnabled(index int, enabled bool) error
}

func (s *Server) registerConfigRoutes() {
	if s.store == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID:   "add-camera",
		Method:        http.MethodPost,
		Path:          "/api/cameras",
		Summary:       "Add Camera",
		Description:   "Append a camera to cameras.toml. Enabled cameras start once the file change is picked up.",
		Tags:          []string{"config"},
		Errors:        []int{400, 401, 500},
		Security:      withAuth(),
		DefaultStatus: http.StatusCreated,
	}, func(_ context.Context, input *models.AddCameraRequest) (*models.CameraConfigResponse, error) {
		settings := cameras.Settings{
			Name:          input.Body.Name,
			URI:           input.Body.URI,
			OutputDir:     input.Body.OutputDir,
			Codec:         cameras.Codec(input.Body.Codec),
			Enabled:       input.Body.Enabled,
			RecordOnStart: input.Body.RecordOnStart,
		}
		index, err := s.store.Add(settings)
		if err != nil {
			return nil, mapStoreError(err)
		}
		s.logger.Info("Camera added", "index", index, "uri", cameras.Redact(settings.URI))
		return s.configResponse(index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-config",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{index}/config",
		Summary:     "Get Camera Config",
		Description: "Persisted settings of one camera",
		Tags:        []string{"config"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraIndexInput) (*models.CameraConfigResponse, error) {
		return s.configResponse(input.Index)
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "update-camera-config",
		Method:        http.MethodPut,
		Path:          "/api/cameras/{index}/config",
		Summary:       "Update Camera Config",
		Description:   "Persist a new URI or enabled flag. A changed URI restarts the camera once the file change is picked up.",
		Tags:          []string{"config"},
		Errors:        []int{400, 401, 404, 500},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
	}, func(_ context.Context, input *models.UpdateCameraConfigRequest) (*models.CameraConfigResponse, error) {
		if input.Body.URI == "" && input.Body.Enabled == nil {
			return nil, huma.Error400BadRequest("nothing to update")
		}
		if input.Body.URI != "" {
			if err := cameras.ValidateURI(input.Body.URI); err != nil {
				return nil, huma.Error400BadRequest("invalid uri", err)
			}
			if err := s.store.SetURI(input.Index, input.Body.URI); err != nil {
				return nil, mapStoreError(err)
			}
		}
		if input.Body.Enabled != nil {
			if err := s.store.SetEnabled(input.Index, *input.Body.Enabled); err != nil {
				return nil, mapStoreError(err)
			}
		}
		s.logger.Info("Camera config updated", "index", input.Index)
		return s.configResponse(input.Index)
	})
}

func (s *Server) configResponse(index int) (*models.CameraConfigResponse, error) {
	settings, err := s.store.Get(index)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &models.CameraConfigResponse{
		Body: models.CameraConfigData{
			Index:         index,
			Name:          settings.Name,
			URI:           cameras.Redact(settings.URI),
			Enabled:       settings.IsEnabled(),
			Codec:         string(settings.Codec),
			OutputDir:     settings.OutputDir,
			NormalFPS:     settings.NormalFPS,
			LowFPS:        settings.LowFPS,
			RecordOnStart: settings.RecordOnStart,
			MaxSegment:    settings.MaxSegment,
		},
	}, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, cameras.ErrNotFound):
		return huma.Error404NotFound("camera not found", err)
	case errors.Is(err, cameras.ErrInvalid):
		return huma.Error400BadRequest("invalid camera settings", err)
	}
	return huma.Error500InternalServerError("failed to write camera config", err)
}
