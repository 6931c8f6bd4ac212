// Package recording owns the gated recording branch of a stream: it opens
// and closes the gate, hot-swaps the encode/mux/sink stages between
// recordings, and decides whether a finished file is worth keeping.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/camrecd/internal/media"
	"github.com/smazurov/camrecd/internal/shaper"
)

// Defaults for Options fields left at zero.
const (
	DefaultMinViableSize = 5120
	DefaultKeyframeDelay = 50 * time.Millisecond
	DefaultDrain         = 200 * time.Millisecond
)

// State is the controller's position in the open/close cycle.
type State string

// Controller states.
const (
	StateClosed  State = "closed"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosing State = "closing"
)

// Branch is the fixed part of the recording branch: everything from the
// fan-out up to and including the rate/caps stages, plus the gate.
type Branch interface {
	// Attach builds a new encode/mux/sink generation writing to path and
	// links it behind the gate.
	Attach(path string) (Generation, error)
	// SetGate opens (passes buffers) or closes (drops buffers) the gate.
	SetGate(open bool) error
}

// Generation is one set of encode/mux/sink stages. A generation serves
// exactly one recording and is never reattached.
type Generation interface {
	ID() uint64
	// ForceKeyframe asks the encoder to emit a key unit with headers.
	ForceKeyframe() error
	// Finalize drains in-flight data for at most drain, then stops,
	// unlinks and removes every stage of the generation.
	Finalize(ctx context.Context, drain time.Duration) error
}

// Recording describes one recording session.
type Recording struct {
	ID         string
	Path       string
	Generation uint64
	StartedAt  time.Time
	EndedAt    time.Time
	Bytes      int64
	Discarded  bool
}

// Duration is the wall-clock length of a finished recording.
func (r Recording) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Hooks receive lifecycle notifications. Both may be nil.
type Hooks struct {
	OnStarted  func(Recording)
	OnFinished func(Recording)
}

// Options configures a Controller.
type Options struct {
	Branch Branch
	Shaper *shaper.Shaper
	Namer  Namer

	MinViableSize int64
	KeyframeDelay time.Duration
	Drain         time.Duration
	// MaxSegment rotates the file after this long. Zero disables rotation.
	MaxSegment time.Duration

	Hooks  Hooks
	Logger *slog.Logger
}

// Controller runs Closed -> Opening -> Open -> Closing -> Closed.
// All control methods are serialized; none may be called from a
// streaming thread.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	current  Generation
	active   *Recording
	rotation *time.Timer
}

// NewController creates a closed controller. Branch and Shaper are required.
func NewController(opts Options) *Controller {
	if opts.Branch == nil || opts.Shaper == nil {
		panic("recording: Options with Branch and Shaper is required")
	}
	if opts.MinViableSize <= 0 {
		opts.MinViableSize = DefaultMinViableSize
	}
	if opts.KeyframeDelay <= 0 {
		opts.KeyframeDelay = DefaultKeyframeDelay
	}
	if opts.Drain <= 0 {
		opts.Drain = DefaultDrain
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		opts:   opts,
		logger: logger,
		state:  StateClosed,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the open recording, if any.
func (c *Controller) Active() (Recording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Recording{}, false
	}
	return *c.active, true
}

// SetActive opens or closes the gate. Repeating the current request is a no-op.
func (c *Controller) SetActive(ctx context.Context, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if active {
		if c.state != StateClosed {
			return nil
		}
		return c.open(ctx)
	}
	if c.state != StateOpen {
		return nil
	}
	_, err := c.close(ctx, c.opts.Drain)
	return err
}

// OnMotionModeChanged adjusts the recording rate. It never touches the gate.
func (c *Controller) OnMotionModeChanged(mode media.Mode) {
	c.opts.Shaper.SetMode(mode)
}

// Rotate finishes the open recording and immediately starts the next one.
// It does nothing while closed.
func (c *Controller) Rotate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil
	}
	if _, err := c.close(ctx, c.opts.Drain); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	return c.open(ctx)
}

// rotateSegment rotates only if the recording that armed the timer is
// still the open one.
func (c *Controller) rotateSegment(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.active == nil || c.active.ID != id {
		return nil
	}
	ctx := context.Background()
	if _, err := c.close(ctx, c.opts.Drain); err != nil {
		return err
	}
	return c.open(ctx)
}

// Abort finalizes the open recording without waiting for in-flight data.
// Used when the graph has already failed.
func (c *Controller) Abort(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen {
		return nil
	}
	_, err := c.close(ctx, 0)
	return err
}

// open must be called with mu held and state Closed.
func (c *Controller) open(ctx context.Context) error {
	c.state = StateOpening

	path, startedAt := c.opts.Namer.Next()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.state = StateClosed
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	if c.current == nil {
		gen, err := c.opts.Branch.Attach(path)
		if err != nil {
			c.state = StateClosed
			return fmt.Errorf("attach recording stages: %w", err)
		}
		c.current = gen
	}

	c.opts.Shaper.Reset()

	if err := c.opts.Branch.SetGate(true); err != nil {
		c.discardGeneration(ctx)
		c.evaluate(path)
		c.state = StateClosed
		return fmt.Errorf("open gate: %w", err)
	}

	// the key-unit request only propagates once buffers flow past the gate
	select {
	case <-time.After(c.opts.KeyframeDelay):
	case <-ctx.Done():
		_ = c.opts.Branch.SetGate(false)
		c.discardGeneration(context.WithoutCancel(ctx))
		c.evaluate(path)
		c.state = StateClosed
		return ctx.Err()
	}

	if err := c.current.ForceKeyframe(); err != nil {
		c.logger.Warn("Forced keyframe request failed", "generation", c.current.ID(), "error", err)
	}

	rec := &Recording{
		ID:         uuid.NewString(),
		Path:       path,
		Generation: c.current.ID(),
		StartedAt:  startedAt,
	}
	c.active = rec
	c.state = StateOpen

	if c.opts.MaxSegment > 0 {
		id := rec.ID
		c.rotation = time.AfterFunc(c.opts.MaxSegment, func() {
			if err := c.rotateSegment(id); err != nil {
				c.logger.Error("Segment rotation failed", "error", err)
			}
		})
	}

	c.logger.Info("Recording started", "path", path, "generation", rec.Generation, "recording_id", rec.ID)
	if c.opts.Hooks.OnStarted != nil {
		c.opts.Hooks.OnStarted(*rec)
	}
	return nil
}

// close must be called with mu held and state Open.
func (c *Controller) close(ctx context.Context, drain time.Duration) (Recording, error) {
	c.state = StateClosing
	if c.rotation != nil {
		c.rotation.Stop()
		c.rotation = nil
	}

	var errs []error
	if err := c.opts.Branch.SetGate(false); err != nil {
		errs = append(errs, fmt.Errorf("close gate: %w", err))
	}

	if c.current != nil {
		if err := c.current.Finalize(ctx, drain); err != nil {
			errs = append(errs, fmt.Errorf("finalize generation %d: %w", c.current.ID(), err))
		}
		c.current = nil
	}

	rec := *c.active
	c.active = nil
	rec.EndedAt = c.now()
	rec.Bytes, rec.Discarded = c.evaluate(rec.Path)

	c.state = StateClosed

	if rec.Discarded {
		c.logger.Info("Recording discarded", "path", rec.Path, "bytes", rec.Bytes, "min_bytes", c.opts.MinViableSize)
	} else {
		c.logger.Info("Recording finished", "path", rec.Path, "bytes", rec.Bytes, "duration", rec.Duration())
	}
	if c.opts.Hooks.OnFinished != nil {
		c.opts.Hooks.OnFinished(rec)
	}

	return rec, errors.Join(errs...)
}

// evaluate returns the file size and removes files below the viable size.
func (c *Controller) evaluate(path string) (int64, bool) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("Cannot stat recording", "path", path, "error", err)
		return 0, false
	}
	size := info.Size()
	if size >= c.opts.MinViableSize {
		return size, false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("Failed to remove empty recording", "path", path, "error", err)
		return size, false
	}
	return size, true
}

// discardGeneration tears down a generation that never carried a recording.
func (c *Controller) discardGeneration(ctx context.Context) {
	if c.current == nil {
		return
	}
	if err := c.current.Finalize(ctx, 0); err != nil {
		c.logger.Warn("Failed to tear down unused generation", "generation", c.current.ID(), "error", err)
	}
	c.current = nil
}

func (c *Controller) now() time.Time {
	if c.opts.Namer.Now != nil {
		return c.opts.Namer.Now()
	}
	return time.Now()
}
