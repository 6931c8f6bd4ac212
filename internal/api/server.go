// Package api is the HTTP control surface: camera control, live view,
// server-sent events and log access, served by huma on a chi router.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smazurov/camrecd/internal/api/models"
	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/logging"
	"github.com/smazurov/camrecd/internal/session"
	"github.com/smazurov/camrecd/internal/version"
)

const authRealm = `Basic realm="camrecd"`

// CameraService is the control surface the API drives. The supervisor
// implements it.
type CameraService interface {
	List() []session.Status
	Status(index int) (session.Status, error)
	Start(ctx context.Context, index int, uri string) error
	Stop(ctx context.Context, index int) error
	Restart(ctx context.Context, index int, uri string) error
	SetRecordingActive(ctx context.Context, index int, active bool) error
	SetLiveViewEnabled(index int, enabled bool) error
}

// FrameSource serves live frames. The live view hub implements it.
type FrameSource interface {
	Snapshot(index int) ([]byte, error)
	StreamMJPEG(ctx context.Context, index int, w io.Writer, flush func()) error
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	Cameras      CameraService
	Frames       FrameSource
	Bus          *events.Bus

	// Store enables the persisted config endpoints when set.
	Store ConfigStore
	// MetricsHandler is mounted at /metrics without auth when set.
	MetricsHandler http.Handler
}

// Server is the huma API server.
type Server struct {
	api        huma.API
	router     chi.Router
	httpServer *http.Server
	cameras    CameraService
	frames     FrameSource
	store      ConfigStore
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server. Cameras and Bus are required.
func NewServer(opts *Options) *Server {
	if opts == nil || opts.Cameras == nil || opts.Bus == nil {
		panic("api: Options with Cameras and Bus is required")
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	corsConfig := DefaultCORSConfig()
	router.Options("/*", corsPreflight(corsConfig))

	config := huma.DefaultConfig("camrecd API", version.Version)
	config.Info.Description = "Control and live view for RTSP camera recording sessions"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humachi.New(router, config)

	server := &Server{
		api:      api,
		router:   router,
		cameras:  opts.Cameras,
		frames:   opts.Frames,
		store:    opts.Store,
		eventBus: opts.Bus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down. Long-lived streams are cut when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		cams := s.cameras.List()
		running := 0
		for _, st := range cams {
			if st.State == session.StateIngesting {
				running++
			}
		}
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
				Cameras: len(cams),
				Running: running,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Name:      info.Name,
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerCameraRoutes()
	s.registerConfigRoutes()
	s.registerLiveViewRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// basicAuthMiddleware checks credentials on every operation that declares
// a security requirement. SSE clients may pass them base64-encoded in ?auth=.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, err := requestCredentials(ctx)
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
			return
		}
		if credentials == "" {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format")
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userOK || !passOK {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

var errAuthScheme = errors.New("unsupported authentication scheme")

func requestCredentials(ctx huma.Context) (string, error) {
	encoded := ""
	if header := ctx.Header("Authorization"); header != "" {
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return "", errAuthScheme
		}
		encoded = header[len(prefix):]
	} else {
		encoded = ctx.Query("auth")
	}
	if encoded == "" {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
