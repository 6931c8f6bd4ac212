// Package session runs one camera: it owns the media graph, the motion
// detector, the frame-rate shaper and the recording controller, and moves
// between Idle, Ingesting and Error.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/media"
	"github.com/smazurov/camrecd/internal/motion"
	"github.com/smazurov/camrecd/internal/pipeline"
	"github.com/smazurov/camrecd/internal/recording"
	"github.com/smazurov/camrecd/internal/shaper"
)

// Defaults for Options fields left at zero.
const (
	DefaultStopTimeout   = 5 * time.Second
	DefaultRestartDelay  = 500 * time.Millisecond
	DefaultStatsInterval = 5 * time.Second
)

// State is the session lifecycle state.
type State string

// Session states.
const (
	StateIdle      State = "idle"
	StateIngesting State = "ingesting"
	StateError     State = "error"
)

// Graph is a built media graph. Implemented by gstreamer.Graph through an
// adapter in main.
type Graph interface {
	Play() error
	Stop(ctx context.Context) error
	Messages() <-chan pipeline.Message
	Recording() recording.Branch
}

// GraphSpec is what a GraphFactory needs to build one graph.
type GraphSpec struct {
	Config  pipeline.Config
	Name    string
	Shaper  *shaper.Shaper
	OnFrame func(media.Frame)
	Logger  *slog.Logger
}

// GraphFactory builds a graph. It must not start it.
type GraphFactory func(GraphSpec) (Graph, error)

// Display receives live frames while live view is enabled.
type Display interface {
	Show(index int, frame media.Frame)
}

// StateChangeCallback is called on every state transition.
type StateChangeCallback func(index int, oldState, newState State, err error)

// Options configures a Session.
type Options struct {
	Index    int
	Settings cameras.Settings
	Factory  GraphFactory
	Display  Display
	Bus      *events.Bus
	Logger   *slog.Logger

	OnStateChange StateChangeCallback

	StopTimeout   time.Duration
	RestartDelay  time.Duration
	StatsInterval time.Duration
	// KeyframeDelay and Drain override the recording controller defaults.
	KeyframeDelay time.Duration
	Drain         time.Duration
	// Now stamps file names and events.
	Now func() time.Time
}

// Session owns one camera's pipeline. Control methods are serialized.
type Session struct {
	opts     Options
	index    int
	settings cameras.Settings
	logger   *slog.Logger

	detector *motion.Detector
	filter   *motion.Filter
	shaper   *shaper.Shaper

	mu              sync.Mutex
	state           State
	lastErr         error
	uri             string
	startedAt       time.Time
	graph           Graph
	controller      *recording.Controller
	recordingWanted bool
	runID           uint64
	runCancel       context.CancelFunc
	runDone         chan struct{}

	// motionWake signals the control loop that motionMode changed; the
	// loop applies the latest mode, so a pending signal covers any number
	// of changes.
	motionWake chan struct{}
	liveView   atomic.Bool

	liveFrames    atomic.Uint64
	skippedFrames atomic.Uint64
	motionMode    atomic.Int32
	motionPercent atomic.Uint64
	switchPercent atomic.Uint64
}

// New creates an idle session. Factory is required.
func New(opts Options) *Session {
	if opts.Factory == nil {
		panic("session: Options with Factory is required")
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := opts.Settings.Normalize(opts.Index)
	s := &Session{
		opts:     opts,
		index:    opts.Index,
		settings: settings,
		logger:   logger,
		detector: motion.NewDetector(motion.Config{
			Threshold:     settings.MotionThreshold,
			FramesToStart: settings.MotionFramesToStart,
			FramesToStop:  settings.NoMotionFramesToStop,
		}),
		filter: motion.NewFilter(motion.FilterConfig{}),
		shaper: shaper.New(shaper.Config{
			KeepEvery:   settings.KeepEvery(),
			Compression: settings.Compression,
		}),
		state:           StateIdle,
		uri:             settings.URI,
		recordingWanted: settings.RecordOnStart,
		motionWake:      make(chan struct{}, 1),
	}
	s.liveView.Store(settings.LiveViewEnabled())
	return s
}

// Index returns the camera index.
func (s *Session) Index() int {
	return s.index
}

// Settings returns the normalized settings the session runs with.
func (s *Session) Settings() cameras.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateFlags adopts the settings that apply without a restart: enabled,
// record-on-start and the initial live-view flag.
func (s *Session) UpdateFlags(next cameras.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.Enabled = next.Enabled
	s.settings.RecordOnStart = next.RecordOnStart
	s.settings.LiveView = next.LiveView
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start builds and plays the graph. An empty uri uses the configured one.
// On setup failure the session stays Idle and the error is returned.
func (s *Session) Start(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateIngesting {
		return ErrAlreadyRunning
	}
	return s.startLocked(ctx, uri)
}

// Stop tears the graph down, finalizing any open recording, and returns
// to Idle. Stopping an idle session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.graph == nil {
		if s.state == StateError {
			s.setState(StateIdle, nil)
		}
		return nil
	}
	err := s.teardownLocked(ctx, true)
	s.setState(StateIdle, nil)
	return err
}

// Restart stops, waits the restart delay, then starts against uri. An
// empty uri keeps the current one.
func (s *Session) Restart(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uri == "" {
		uri = s.uri
	}
	s.logger.Info("Restarting session", "uri", cameras.Redact(uri))

	if s.graph != nil {
		if err := s.teardownLocked(ctx, true); err != nil {
			s.logger.Warn("Teardown before restart failed", "error", err)
		}
		s.setState(StateIdle, nil)
	}

	select {
	case <-time.After(s.opts.RestartDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.startLocked(ctx, uri)
}

// SetRecordingActive records the request and applies it while ingesting.
// A request made while idle takes effect on the next start.
func (s *Session) SetRecordingActive(ctx context.Context, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordingWanted = active
	if s.controller == nil || s.state != StateIngesting {
		return nil
	}
	return s.controller.SetActive(ctx, active)
}

// SetLiveViewEnabled toggles frame delivery to the display. Detection and
// recording continue either way and the graph is untouched.
func (s *Session) SetLiveViewEnabled(enabled bool) {
	if s.liveView.Swap(enabled) == enabled {
		return
	}
	s.logger.Info("Live view toggled", "enabled", enabled)
	s.publish(events.LiveViewToggledEvent{
		Index:     s.index,
		Enabled:   enabled,
		Timestamp: s.timestamp(),
	})
}

// LiveViewEnabled reports the live-view flag.
func (s *Session) LiveViewEnabled() bool {
	return s.liveView.Load()
}

// startLocked must be called with mu held and no graph attached.
func (s *Session) startLocked(ctx context.Context, uri string) error {
	if uri == "" {
		uri = s.uri
	}
	if err := cameras.ValidateURI(uri); err != nil {
		return err
	}

	s.detector.Reset()
	s.filter.Reset()
	s.shaper.SetMode(media.LowRate)
	s.shaper.Reset()
	s.drainMotion()
	s.liveFrames.Store(0)
	s.skippedFrames.Store(0)
	s.motionMode.Store(int32(media.LowRate))
	s.motionPercent.Store(0)
	s.switchPercent.Store(0)

	cfg := pipeline.FromSettings(s.settings).WithURI(uri)
	graph, err := s.opts.Factory(GraphSpec{
		Config:  cfg,
		Name:    fmt.Sprintf("cam%d", s.index),
		Shaper:  s.shaper,
		OnFrame: s.onFrame,
		Logger:  s.logger,
	})
	if err != nil {
		s.logger.Error("Failed to build pipeline", "error", err)
		return fmt.Errorf("build pipeline: %w", err)
	}

	controller := recording.NewController(recording.Options{
		Branch: graph.Recording(),
		Shaper: s.shaper,
		Namer: recording.Namer{
			Dir:    s.settings.OutputDir,
			Camera: s.settings.Name,
			Now:    s.opts.Now,
		},
		KeyframeDelay: s.opts.KeyframeDelay,
		Drain:         s.opts.Drain,
		MaxSegment:    s.settings.Segment(),
		Hooks: recording.Hooks{
			OnStarted:  s.recordingStarted,
			OnFinished: s.recordingFinished,
		},
		Logger: s.logger,
	})

	if err := graph.Play(); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StopTimeout)
		defer cancel()
		if stopErr := graph.Stop(stopCtx); stopErr != nil {
			s.logger.Warn("Failed to stop unplayable pipeline", "error", stopErr)
		}
		return fmt.Errorf("play pipeline: %w", err)
	}

	s.graph = graph
	s.controller = controller
	s.uri = uri
	s.startedAt = s.opts.Now()
	s.runID++
	runCtx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.runDone = make(chan struct{})
	go s.run(runCtx, s.runID, graph, controller, s.runDone)

	s.setState(StateIngesting, nil)
	s.logger.Info("Session ingesting", "uri", cameras.Redact(uri))

	if s.recordingWanted {
		if err := controller.SetActive(ctx, true); err != nil {
			s.logger.Error("Failed to reopen recording", "error", err)
		}
	}
	return nil
}

// teardownLocked stops the control loop, finalizes the recording and
// stops the graph within the stop timeout. graceful selects a drained
// close over an abort.
func (s *Session) teardownLocked(ctx context.Context, graceful bool) error {
	if s.runCancel != nil {
		s.runCancel()
		<-s.runDone
		s.runCancel = nil
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StopTimeout)
	defer cancel()

	var recErr error
	if s.controller != nil {
		if graceful {
			recErr = s.controller.SetActive(stopCtx, false)
		} else {
			recErr = s.controller.Abort(stopCtx)
		}
		if recErr != nil {
			s.logger.Warn("Failed to finalize recording", "error", recErr)
		}
	}

	err := s.graph.Stop(stopCtx)
	if err != nil {
		s.logger.Warn("Pipeline stop did not complete", "error", err)
	}
	s.graph = nil
	s.controller = nil
	return err
}

// setState must be called with mu held.
func (s *Session) setState(state State, err error) {
	old := s.state
	s.state = state
	s.lastErr = err
	if old == state && err == nil {
		return
	}

	ev := events.StreamStateChangedEvent{
		Index:     s.index,
		Camera:    s.settings.Name,
		State:     string(state),
		Previous:  string(old),
		URI:       cameras.Redact(s.uri),
		Timestamp: s.timestamp(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.publish(ev)

	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(s.index, old, state, err)
	}
}

func (s *Session) drainMotion() {
	for {
		select {
		case <-s.motionWake:
		default:
			return
		}
	}
}

func (s *Session) publish(ev events.Event) {
	if s.opts.Bus != nil {
		s.opts.Bus.Publish(ev)
	}
}

func (s *Session) timestamp() string {
	return s.opts.Now().UTC().Format(time.RFC3339)
}
