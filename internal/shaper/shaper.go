// Package shaper decides, per encoded-branch buffer, whether to keep it and
// what presentation timestamp it should carry in the recording.
package shaper

import (
	"sync"
	"time"

	"github.com/smazurov/camrecd/internal/media"
)

// Defaults for Config fields left at zero.
const (
	DefaultKeepEvery   = 25
	DefaultCompression = 10
	DefaultGrace       = -20
)

// Config tunes a Shaper.
type Config struct {
	// KeepEvery keeps one buffer out of this many in LowRate.
	KeepEvery int
	// Compression divides timestamp deltas in LowRate.
	Compression int
	// Grace is the negative drop counter installed by Reset; that many
	// buffers pass unconditionally so the forced keyframe survives.
	Grace int
}

func (c Config) withDefaults() Config {
	if c.KeepEvery <= 0 {
		c.KeepEvery = DefaultKeepEvery
	}
	if c.Compression <= 0 {
		c.Compression = DefaultCompression
	}
	if c.Grace > 0 {
		c.Grace = -c.Grace
	}
	if c.Grace == 0 {
		c.Grace = DefaultGrace
	}
	return c
}

// Decision is the outcome for one buffer.
type Decision struct {
	// Keep is false when the buffer must be dropped.
	Keep bool
	// Rewrite reports whether PTS replaces the buffer timestamp.
	// Buffers without a timestamp are kept untouched.
	Rewrite bool
	PTS     time.Duration
}

// Stats counts buffers seen since construction.
type Stats struct {
	Kept    uint64
	Dropped uint64
}

// Shaper holds the timestamp state of one recording branch.
//
// Process runs on the encoder's streaming thread. SetMode and Reset arrive
// from the control path, so all state sits behind a mutex.
type Shaper struct {
	cfg Config

	mu          sync.Mutex
	mode        media.Mode
	dropCounter int
	hasLast     bool
	lastInput   time.Duration
	accumulated time.Duration
	stats       Stats
}

// New creates a shaper in LowRate whose first buffer will be pinned to zero.
func New(cfg Config) *Shaper {
	cfg = cfg.withDefaults()
	return &Shaper{
		cfg:         cfg,
		mode:        media.LowRate,
		dropCounter: cfg.Grace,
	}
}

// Config returns the effective configuration.
func (s *Shaper) Config() Config {
	return s.cfg
}

// Reset starts a new recording: grace counter and a cleared baseline so
// the next kept buffer is stamped 0. The rate mode is left alone; it
// follows the motion detector through SetMode only.
func (s *Shaper) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropCounter = s.cfg.Grace
	s.hasLast = false
	s.lastInput = 0
	s.accumulated = 0
}

// SetMode switches rate mode. Entering LowRate restarts the 1-in-N cycle.
// Setting the current mode again changes nothing.
func (s *Shaper) SetMode(mode media.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == mode {
		return
	}
	s.mode = mode
	if mode == media.LowRate {
		s.dropCounter = 0
	}
}

// Mode returns the current rate mode.
func (s *Shaper) Mode() media.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Stats returns kept/dropped counters.
func (s *Shaper) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Process decides the fate of one buffer. hasPTS is false for buffers
// without a valid presentation timestamp.
func (s *Shaper) Process(pts time.Duration, hasPTS bool) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.admit() {
		s.stats.Dropped++
		return Decision{}
	}
	s.stats.Kept++

	if !hasPTS {
		return Decision{Keep: true}
	}

	if !s.hasLast {
		s.hasLast = true
		s.lastInput = pts
		s.accumulated = 0
		return Decision{Keep: true, Rewrite: true, PTS: 0}
	}

	if pts < s.lastInput {
		// out-of-order input: hold output time, move the baseline
		s.lastInput = pts
		return Decision{Keep: true, Rewrite: true, PTS: s.accumulated}
	}

	delta := pts - s.lastInput
	s.lastInput = pts
	if s.mode == media.LowRate {
		delta /= time.Duration(s.cfg.Compression)
	}
	s.accumulated += delta

	return Decision{Keep: true, Rewrite: true, PTS: s.accumulated}
}

// admit applies the rate rule and advances the drop counter.
func (s *Shaper) admit() bool {
	if s.mode != media.LowRate {
		s.dropCounter = 0
		return true
	}
	if s.dropCounter < 0 {
		s.dropCounter++
		return true
	}
	s.dropCounter++
	if s.dropCounter < s.cfg.KeepEvery {
		return false
	}
	s.dropCounter = 0
	return true
}
