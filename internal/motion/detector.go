// Package motion decides whether a camera is seeing activity.
//
// A Detector samples one channel of every fourth pixel, compares the sample
// with the previous frame and counts how many elements moved by more than a
// fixed amount. A frame "has motion" when that fraction exceeds the configured
// percentage. The detector only changes mode after a sustained run of such
// frames, so a single noisy frame never flips recording rate.
package motion

import (
	"github.com/smazurov/camrecd/internal/media"
)

// Defaults for Config fields left at zero.
const (
	DefaultThreshold     = 1.0
	DefaultFramesToStart = 10
	DefaultFramesToStop  = 40
	DefaultPixelDelta    = 30
	DefaultSampleStride  = 48 // 4 pixels * 3 bytes, first channel only
	DefaultSampleDivisor = 16
)

// Config tunes a Detector.
type Config struct {
	// Threshold is the percentage of changed samples above which a frame
	// counts as a motion frame.
	Threshold float64
	// FramesToStart is the run of motion frames needed to enter NormalRate.
	FramesToStart int
	// FramesToStop is the run of still frames needed to return to LowRate.
	FramesToStop int
	// PixelDelta is the per-sample absolute difference that counts as change.
	PixelDelta int
	// Stride is the byte step between samples.
	Stride int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.FramesToStart <= 0 {
		c.FramesToStart = DefaultFramesToStart
	}
	if c.FramesToStop <= 0 {
		c.FramesToStop = DefaultFramesToStop
	}
	if c.PixelDelta <= 0 {
		c.PixelDelta = DefaultPixelDelta
	}
	if c.Stride <= 0 {
		c.Stride = DefaultSampleStride
	}
	return c
}

// Transition describes a mode change produced by Observe.
type Transition struct {
	From media.Mode
	To   media.Mode
	// Percent is the changed-sample percentage of the frame that completed the run.
	Percent float64
}

// Result is the per-frame outcome of Observe.
type Result struct {
	Motion      bool
	Percent     float64
	MotionRun   int
	StillRun    int
	Mode        media.Mode
	HasBaseline bool
}

// Detector runs the sampling and hysteresis state machine for one stream.
// It is not safe for concurrent use: exactly one goroutine (the one
// delivering the stream's live frames) may call Observe.
type Detector struct {
	cfg       Config
	previous  []byte
	current   []byte
	motionRun int
	stillRun  int
	mode      media.Mode
}

// NewDetector creates a detector in LowRate with no baseline sample.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:  cfg.withDefaults(),
		mode: media.LowRate,
	}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Mode returns the current mode.
func (d *Detector) Mode() media.Mode {
	return d.mode
}

// Reset returns the detector to LowRate and clears both runs.
// The previous sample is kept so the next frame can still be compared.
func (d *Detector) Reset() {
	d.mode = media.LowRate
	d.motionRun = 0
	d.stillRun = 0
}

// Observe consumes one frame. The returned transition is valid only when ok is true.
func (d *Detector) Observe(frame media.Frame) (Result, Transition, bool) {
	size := frame.Width * frame.Height / DefaultSampleDivisor
	if size <= 0 {
		return d.result(false, 0, false), Transition{}, false
	}

	d.current = sample(d.current[:0], frame.Data, d.cfg.Stride, size)

	hasBaseline := len(d.previous) == size && len(d.current) == size
	var percent float64
	if hasBaseline {
		percent = changedPercent(d.previous, d.current, d.cfg.PixelDelta)
	}
	hasMotion := hasBaseline && percent > d.cfg.Threshold

	// swap buffers so the current sample becomes the baseline
	d.previous, d.current = d.current, d.previous

	if hasMotion {
		d.stillRun = 0
		d.motionRun++
	} else {
		d.motionRun = 0
		d.stillRun++
	}

	res := d.result(hasMotion, percent, hasBaseline)

	switch {
	case d.mode == media.LowRate && d.motionRun >= d.cfg.FramesToStart:
		d.mode = media.NormalRate
		res.Mode = d.mode
		return res, Transition{From: media.LowRate, To: media.NormalRate, Percent: percent}, true
	case d.mode == media.NormalRate && d.stillRun >= d.cfg.FramesToStop:
		d.mode = media.LowRate
		res.Mode = d.mode
		return res, Transition{From: media.NormalRate, To: media.LowRate, Percent: percent}, true
	}

	return res, Transition{}, false
}

func (d *Detector) result(motion bool, percent float64, baseline bool) Result {
	return Result{
		Motion:      motion,
		Percent:     percent,
		MotionRun:   d.motionRun,
		StillRun:    d.stillRun,
		Mode:        d.mode,
		HasBaseline: baseline,
	}
}

// sample appends up to size bytes from data taken every stride bytes.
func sample(dst, data []byte, stride, size int) []byte {
	for i := 0; i < len(data) && len(dst) < size; i += stride {
		dst = append(dst, data[i])
	}
	return dst
}

// changedPercent returns the percentage of elements whose absolute
// difference exceeds delta.
func changedPercent(prev, cur []byte, delta int) float64 {
	if len(cur) == 0 {
		return 0
	}
	changed := 0
	for i := range cur {
		diff := int(cur[i]) - int(prev[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > delta {
			changed++
		}
	}
	return float64(changed) / float64(len(cur)) * 100
}
