package metrics

import (
	"sync"

	"github.com/smazurov/camrecd/internal/events"
)

// Collector feeds the metrics from session events on the bus.
type Collector struct {
	bus    *events.Bus
	mu     sync.Mutex
	unsubs []func()
}

// NewCollector creates a collector for bus. Call Start to subscribe.
func NewCollector(bus *events.Bus) *Collector {
	return &Collector{bus: bus}
}

// Start subscribes to every event the metrics are derived from.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unsubs) > 0 {
		return
	}
	c.unsubs = []func(){
		c.bus.Subscribe(func(e events.StreamStateChangedEvent) {
			SetIngesting(e.Index, e.Camera, e.State == "ingesting")
		}),
		c.bus.Subscribe(func(e events.MotionModeChangedEvent) {
			SetMotionMode(e.Index, e.Camera, e.Motion())
		}),
		c.bus.Subscribe(func(e events.RecordingStartedEvent) {
			RecordingStarted(e.Index, e.Camera)
		}),
		c.bus.Subscribe(func(e events.RecordingFinishedEvent) {
			RecordingFinished(e.Index, e.Camera, e.Bytes, e.Seconds, e.Discarded)
		}),
		c.bus.Subscribe(func(e events.PipelineMessageEvent) {
			ObservePipelineMessage(e.Index, e.Camera, e.Level)
			if e.Level != "warning" {
				ObserveSessionError(e.Index, e.Camera, e.Category)
			}
		}),
		c.bus.Subscribe(func(e events.FrameStatsEvent) {
			SetFrameStats(e.Index, e.Camera, e.LiveFrames, e.SkippedFrames, e.KeptBuffers, e.DroppedBuffers)
		}),
	}
}

// Stop unsubscribes from the bus.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
