// Package supervisor maps camera indexes to sessions and exposes the
// control operations the API and CLI use.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/logging"
	"github.com/smazurov/camrecd/internal/session"
)

// DefaultRestartDelay separates stop and start when a camera is reconfigured.
const DefaultRestartDelay = 500 * time.Millisecond

// StateInfo is the supervisor's record of one session's last transition.
type StateInfo struct {
	State     session.State
	LastError error
	Since     time.Time
}

// Options configures a Supervisor.
type Options struct {
	// Factory builds media graphs for every session (required).
	Factory session.GraphFactory
	Display session.Display
	Bus     *events.Bus
	Logger  *slog.Logger

	// OnStateChange is called after the state map is updated (optional).
	OnStateChange session.StateChangeCallback

	RestartDelay time.Duration
	// Session carries timing overrides copied into every session.
	Session session.Options
}

// Supervisor owns all sessions. Control calls are serialized; state reads
// go through a separate RWMutex so they never wait on a pipeline.
type Supervisor struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int]*session.Session

	statusMu sync.RWMutex
	states   map[int]StateInfo
}

// New creates a supervisor with one idle session per camera. Nothing starts.
func New(opts Options, cams []cameras.Settings) *Supervisor {
	if opts.Factory == nil {
		panic("supervisor: Options with Factory is required")
	}
	if opts.RestartDelay <= 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		opts:     opts,
		logger:   logger,
		sessions: make(map[int]*session.Session),
		states:   make(map[int]StateInfo),
	}
	for i, cam := range cams {
		s.sessions[i] = s.newSession(i, cam)
	}
	return s
}

func (s *Supervisor) newSession(index int, settings cameras.Settings) *session.Session {
	settings = settings.Normalize(index)
	opts := s.opts.Session
	opts.Index = index
	opts.Settings = settings
	opts.Factory = s.opts.Factory
	opts.Display = s.opts.Display
	opts.Bus = s.opts.Bus
	opts.Logger = logging.ForCamera(logging.GetLogger("session"), index, settings.Name)
	opts.OnStateChange = s.stateChanged

	s.statusMu.Lock()
	s.states[index] = StateInfo{State: session.StateIdle, Since: time.Now()}
	s.statusMu.Unlock()

	return session.New(opts)
}

// stateChanged records a session transition and routes failures to the log.
func (s *Supervisor) stateChanged(index int, oldState, newState session.State, err error) {
	s.statusMu.Lock()
	s.states[index] = StateInfo{State: newState, LastError: err, Since: time.Now()}
	s.statusMu.Unlock()

	if newState == session.StateError {
		s.logger.Error("Session failed", "index", index, "error", err)
	} else {
		s.logger.Debug("Session state changed", "index", index, "from", oldState, "to", newState)
	}

	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(index, oldState, newState, err)
	}
}

func (s *Supervisor) get(index int) (*session.Session, error) {
	sess, ok := s.sessions[index]
	if !ok {
		return nil, notFound(index)
	}
	return sess, nil
}

// Start starts a camera. An empty uri uses the configured one.
func (s *Supervisor) Start(ctx context.Context, index int, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(index)
	if err != nil {
		return err
	}
	if sess.State() == session.StateIngesting {
		return NewError(ErrCodeAlreadyRunning, fmt.Sprintf("camera %d already running", index), nil)
	}
	if uri != "" {
		if err := cameras.ValidateURI(uri); err != nil {
			return NewError(ErrCodeInvalidParams, "invalid uri", err)
		}
	}
	if err := sess.Start(ctx, uri); err != nil {
		return NewError(ErrCodePipelineError, fmt.Sprintf("failed to start camera %d", index), err)
	}
	return nil
}

// Stop stops a running camera.
func (s *Supervisor) Stop(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(index)
	if err != nil {
		return err
	}
	if sess.State() == session.StateIdle {
		return NewError(ErrCodeNotRunning, fmt.Sprintf("camera %d not running", index), nil)
	}
	if err := sess.Stop(ctx); err != nil {
		return NewError(ErrCodePipelineError, fmt.Sprintf("failed to stop camera %d", index), err)
	}
	return nil
}

// Restart stops a camera and starts it again against uri after the
// restart delay. An empty uri keeps the current one.
func (s *Supervisor) Restart(ctx context.Context, index int, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(index)
	if err != nil {
		return err
	}
	if uri != "" {
		if err := cameras.ValidateURI(uri); err != nil {
			return NewError(ErrCodeInvalidParams, "invalid uri", err)
		}
	}
	if err := sess.Restart(ctx, uri); err != nil {
		return NewError(ErrCodePipelineError, fmt.Sprintf("failed to restart camera %d", index), err)
	}
	return nil
}

// SetRecordingActive requests recording on or off. Requests for an idle
// camera are kept until it starts.
func (s *Supervisor) SetRecordingActive(ctx context.Context, index int, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(index)
	if err != nil {
		return err
	}
	if err := sess.SetRecordingActive(ctx, active); err != nil {
		return NewError(ErrCodePipelineError, fmt.Sprintf("failed to switch recording for camera %d", index), err)
	}
	return nil
}

// SetLiveViewEnabled toggles frame delivery to the display.
func (s *Supervisor) SetLiveViewEnabled(index int, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.get(index)
	if err != nil {
		return err
	}
	sess.SetLiveViewEnabled(enabled)
	return nil
}

// Status returns a detailed snapshot of one camera.
func (s *Supervisor) Status(index int) (session.Status, error) {
	s.mu.Lock()
	sess, err := s.get(index)
	s.mu.Unlock()
	if err != nil {
		return session.Status{}, err
	}
	return sess.Status(), nil
}

// List returns snapshots of every camera ordered by index.
func (s *Supervisor) List() []session.Status {
	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	out := make([]session.Status, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// State reads the state map without touching the session.
func (s *Supervisor) State(index int) (StateInfo, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	info, ok := s.states[index]
	return info, ok
}

// States copies the whole state map.
func (s *Supervisor) States() map[int]StateInfo {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	out := make(map[int]StateInfo, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// StartEnabled starts every enabled camera and returns the joined errors.
func (s *Supervisor) StartEnabled(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, index := range s.indexes() {
		sess := s.sessions[index]
		if !sess.Settings().IsEnabled() {
			continue
		}
		if err := sess.Start(ctx, ""); err != nil {
			errs = append(errs, fmt.Errorf("camera %d: %w", index, err))
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every session.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.logger.Info("Stopping all sessions")
	s.mu.Lock()
	defer s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range s.sessions {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if err := sess.Stop(ctx); err != nil {
				s.logger.Warn("Session stop incomplete", "index", sess.Index(), "error", err)
			}
		}(sess)
	}
	wg.Wait()
	s.logger.Info("All sessions stopped")
}

// indexes must be called with mu held.
func (s *Supervisor) indexes() []int {
	out := make([]int, 0, len(s.sessions))
	for index := range s.sessions {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}

// Summary is a one-line count of session states, e.g. "2/3 ingesting, 1 failed".
func (s *Supervisor) Summary() string {
	states := s.States()
	var ingesting, failed int
	for _, info := range states {
		switch info.State {
		case session.StateIngesting:
			ingesting++
		case session.StateError:
			failed++
		}
	}
	line := fmt.Sprintf("%d/%d ingesting", ingesting, len(states))
	if failed > 0 {
		line += fmt.Sprintf(", %d failed", failed)
	}
	return line
}
