package motion

import "github.com/smazurov/camrecd/internal/media"

// Filter defaults.
const (
	DefaultWarmupFrames   = 5
	DefaultZeroProbeBytes = 1000
	DefaultMaxZeroRatio   = 0.5
)

// Reject names the reason a frame was filtered out. The zero value accepts.
type Reject string

// Reject reasons.
const (
	Accept        Reject = ""
	RejectWarmup  Reject = "warmup"
	RejectShort   Reject = "short"
	RejectCorrupt Reject = "corrupted"
	RejectBlank   Reject = "blank"
)

// FilterConfig tunes the sanity filter. Zero fields take defaults.
type FilterConfig struct {
	WarmupFrames   int
	ZeroProbeBytes int
	MaxZeroRatio   float64
}

// Filter drops frames that would poison the motion baseline: the first
// frames after start, truncated or corrupted buffers, and mostly-black
// frames a decoder emits before its first keyframe.
type Filter struct {
	cfg  FilterConfig
	seen int
}

// NewFilter creates a filter at the start of its warm-up.
func NewFilter(cfg FilterConfig) *Filter {
	if cfg.WarmupFrames <= 0 {
		cfg.WarmupFrames = DefaultWarmupFrames
	}
	if cfg.ZeroProbeBytes <= 0 {
		cfg.ZeroProbeBytes = DefaultZeroProbeBytes
	}
	if cfg.MaxZeroRatio <= 0 {
		cfg.MaxZeroRatio = DefaultMaxZeroRatio
	}
	return &Filter{cfg: cfg}
}

// Reset restarts the warm-up.
func (f *Filter) Reset() {
	f.seen = 0
}

// Check classifies one frame. Every call counts toward the warm-up.
func (f *Filter) Check(frame media.Frame) Reject {
	f.seen++
	if f.seen <= f.cfg.WarmupFrames {
		return RejectWarmup
	}
	if len(frame.Data) < frame.ExpectedSize() {
		return RejectShort
	}
	if frame.Corrupted {
		return RejectCorrupt
	}

	probe := frame.Data
	if len(probe) > f.cfg.ZeroProbeBytes {
		probe = probe[:f.cfg.ZeroProbeBytes]
	}
	if len(probe) == 0 {
		return RejectShort
	}
	zeros := 0
	for _, b := range probe {
		if b == 0 {
			zeros++
		}
	}
	if float64(zeros)/float64(len(probe)) > f.cfg.MaxZeroRatio {
		return RejectBlank
	}
	return Accept
}
