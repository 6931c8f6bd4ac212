package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/config"
	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/logging"
	"github.com/smazurov/camrecd/internal/session"
)

const stopTimeout = 10 * time.Second

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var configFile string
	var camerasFile string
	var noRecord bool
	var logJSON bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "record [index]",
		Short: "Record one camera without the API server",
		Long: `Ingests the camera at the given index of cameras.toml and records it until interrupted. ` +
			`Edits to the camera in cameras.toml are applied on the fly; removing it ends the command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil || index < 0 {
				return fmt.Errorf("invalid camera index %q", args[0])
			}

			loggingConfig := config.LoadLoggingConfig(configFile)
			if cmd.Flags().Changed("log-level") {
				loggingConfig.Level = logLevel
			}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("record").With("index", index)

			cams, err := cameras.Load(camerasFile)
			if err != nil {
				return err
			}
			if index >= len(cams) {
				return fmt.Errorf("camera %d not found in %s", index, camerasFile)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := &recorder{
				index:    index,
				record:   !noRecord,
				factory:  GraphFactory(),
				bus:      events.New(),
				failures: make(chan error, 1),
				logger:   logger,
			}
			if err := r.start(ctx, cams[index]); err != nil {
				return err
			}

			watcher := config.NewConfigWatcher(
				camerasFile,
				cameras.Load,
				logger,
				config.WithDebounce[[]cameras.Settings](config.DefaultDebounce),
			)
			removed := make(chan struct{})
			watcher.OnReload(func(all []cameras.Settings) {
				if index >= len(all) {
					logger.Warn("Camera removed from config, shutting down")
					close(removed)
					return
				}
				r.reload(ctx, all[index])
			})
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("Interrupted, finalizing recording")
			case <-removed:
			case runErr = <-r.failures:
				logger.Error("Camera failed", "error", runErr)
			}

			if err := r.stop(); err != nil {
				return errors.Join(runErr, err)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "config.toml", "Path to the service configuration, read for its [logging] table")
	cmd.Flags().StringVar(&camerasFile, "cameras", "cameras.toml", "Path to camera definitions")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Ingest and detect motion without writing files")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

// recorder runs a single session and swaps it when its settings change.
type recorder struct {
	index    int
	record   bool
	factory  session.GraphFactory
	bus      *events.Bus
	failures chan error
	logger   *slog.Logger

	mu      sync.Mutex
	session *session.Session
}

func (r *recorder) newSession(settings cameras.Settings) *session.Session {
	return session.New(session.Options{
		Index:    r.index,
		Settings: settings,
		Factory:  r.factory,
		Bus:      r.bus,
		Logger:   logging.ForCamera(logging.GetLogger("session"), r.index, settings.Name),
		OnStateChange: func(_ int, _, newState session.State, err error) {
			if newState != session.StateError {
				return
			}
			select {
			case r.failures <- err:
			default:
			}
		},
	})
}

func (r *recorder) start(ctx context.Context, settings cameras.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(ctx, settings)
}

func (r *recorder) startLocked(ctx context.Context, settings cameras.Settings) error {
	r.session = r.newSession(settings)
	if err := r.session.Start(ctx, ""); err != nil {
		return err
	}
	if r.record {
		if err := r.session.SetRecordingActive(ctx, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *recorder) stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return r.session.Stop(ctx)
}

func (r *recorder) reload(ctx context.Context, next cameras.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.session.Settings()
	if !cameras.RestartRequired(current, next) {
		r.session.UpdateFlags(next)
		r.logger.Debug("Config reloaded, pipeline unchanged")
		return
	}

	r.logger.Info("Camera settings changed, restarting")
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := r.session.Stop(stopCtx); err != nil {
		r.logger.Warn("Failed to stop camera cleanly", "error", err)
	}
	time.Sleep(session.DefaultRestartDelay)
	if err := r.startLocked(ctx, next); err != nil {
		select {
		case r.failures <- err:
		default:
		}
	}
}
