package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"

	"github.com/smazurov/camrecd/cmd"
	"github.com/smazurov/camrecd/internal/api"
	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/config"
	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/liveview"
	"github.com/smazurov/camrecd/internal/logging"
	"github.com/smazurov/camrecd/internal/metrics"
	"github.com/smazurov/camrecd/internal/session"
	"github.com/smazurov/camrecd/internal/supervisor"
	"github.com/smazurov/camrecd/internal/systemd"
	"github.com/smazurov/camrecd/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Camera settings
	CamerasFile  string `help:"Camera definitions file" default:"cameras.toml" toml:"cameras.config_file" env:"CAMERAS_CONFIG_FILE"`
	AutoStart    bool   `help:"Start enabled cameras at launch" default:"true" toml:"cameras.auto_start" env:"CAMERAS_AUTO_START"`
	StopTimeout  string `help:"Bound on stopping one camera" default:"5s" toml:"cameras.stop_timeout" env:"CAMERAS_STOP_TIMEOUT"`
	StatsSeconds int    `help:"Interval between frame counter events" default:"5" toml:"cameras.stats_interval_seconds" env:"CAMERAS_STATS_INTERVAL"`

	// Live view settings
	JPEGQuality int `help:"JPEG quality for snapshots and MJPEG" default:"80" toml:"liveview.jpeg_quality" env:"LIVEVIEW_JPEG_QUALITY"`

	// Observability settings
	PrometheusEnabled bool `help:"Expose Prometheus metrics at /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBufferSize int    `help:"Log lines kept for /api/logs" default:"1000" toml:"logging.buffer_size" env:"LOGGING_BUFFER_SIZE"`
	LoggingSession    string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP access logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingLiveView   string `help:"Live view logging level" default:"info" toml:"logging.liveview" env:"LOGGING_LIVEVIEW"`
	LoggingConfig     string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:      opts.LoggingLevel,
			Format:     opts.LoggingFormat,
			BufferSize: opts.LoggingBufferSize,
			Modules: map[string]string{
				"session":    opts.LoggingSession,
				"supervisor": opts.LoggingSupervisor,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
				"liveview":   opts.LoggingLiveView,
				"config":     opts.LoggingConfig,
			},
		})
		logger := logging.GetLogger("main")
		logger.Info("Starting", "version", version.String())

		eventBus := events.New()
		api.PublishLogs(eventBus)

		store := cameras.NewStore(opts.CamerasFile)
		if loadErr := store.Load(); loadErr != nil {
			logger.Error("Failed to load cameras", "file", opts.CamerasFile, "error", loadErr)
			os.Exit(1)
		}

		stopTimeout, parseErr := time.ParseDuration(opts.StopTimeout)
		if parseErr != nil {
			logger.Warn("Invalid stop timeout, using default", "value", opts.StopTimeout)
			stopTimeout = session.DefaultStopTimeout
		}

		hub := liveview.NewHub(opts.JPEGQuality, logging.GetLogger("liveview"))
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		var sup *supervisor.Supervisor
		sup = supervisor.New(supervisor.Options{
			Factory: cmd.GraphFactory(),
			Display: hub,
			Bus:     eventBus,
			Logger:  logging.GetLogger("supervisor"),
			OnStateChange: func(index int, _, newState session.State, _ error) {
				if newState != session.StateIngesting {
					hub.Clear(index)
				}
				notifier.Status(sup.Summary())
			},
			Session: session.Options{
				StopTimeout:   stopTimeout,
				StatsInterval: time.Duration(opts.StatsSeconds) * time.Second,
			},
		}, store.List())

		unsubLive := eventBus.Subscribe(func(e events.LiveViewToggledEvent) {
			if !e.Enabled {
				hub.Clear(e.Index)
			}
		})

		collector := metrics.NewCollector(eventBus)

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Cameras:      sup,
			Frames:       hub,
			Bus:          eventBus,
			Store:        store,
		}
		if opts.PrometheusEnabled {
			apiOpts.MetricsHandler = metrics.Handler()
		}
		server := api.NewServer(apiOpts)

		watcher := config.NewConfigWatcher(
			opts.CamerasFile,
			cameras.Load,
			logging.GetLogger("config"),
			config.WithDebounce[[]cameras.Settings](config.DefaultDebounce),
			config.WithErrorHandler[[]cameras.Settings](func(err error) {
				logger.Warn("Ignoring invalid cameras file", "error", err)
			}),
		)
		watcher.OnReload(func(cams []cameras.Settings) {
			notifier.Reloading()
			defer notifier.Ready()
			if loadErr := store.Load(); loadErr != nil {
				logger.Warn("Failed to refresh camera store", "error", loadErr)
			}
			if recErr := sup.Reconcile(context.Background(), cams); recErr != nil {
				logger.Error("Camera reconcile incomplete", "error", recErr)
			}
		})

		runCtx, cancelRun := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			collector.Start()

			if opts.AutoStart {
				if startErr := sup.StartEnabled(runCtx); startErr != nil {
					logger.Error("Some cameras failed to start", "error", startErr)
				}
			}

			if watchErr := watcher.Start(runCtx); watchErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", watchErr)
			}

			notifier.Ready()
			notifier.Status(sup.Summary())
			go notifier.RunWatchdog(runCtx, nil)

			if startErr := server.Start(opts.Port); startErr != nil {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()

			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout+5*time.Second)
			defer cancel()

			if stopErr := server.Stop(stopCtx); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			_ = watcher.Stop()

			// recordings are finalized before the process exits
			sup.StopAll(stopCtx)

			cancelRun()
			unsubLive()
			collector.Stop()
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateRecordCmd())
	cli.Root().AddCommand(cmd.CreateCheckElementsCmd())

	cli.Run()
}
