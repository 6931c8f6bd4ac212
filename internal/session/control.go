package session

import (
	"context"
	"math"
	"time"

	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/media"
	"github.com/smazurov/camrecd/internal/motion"
	"github.com/smazurov/camrecd/internal/pipeline"
	"github.com/smazurov/camrecd/internal/recording"
)

// run is the per-graph control loop. It never takes s.mu so teardown can
// wait for it while holding the lock; fatal messages are handed to fail
// on a fresh goroutine instead.
func (s *Session) run(ctx context.Context, runID uint64, graph Graph, controller *recording.Controller, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.opts.StatsInterval)
	defer ticker.Stop()

	// the graph starts with detector and shaper in LowRate
	applied := media.LowRate

	messages := graph.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.motionWake:
			mode := media.Mode(s.motionMode.Load())
			if mode == applied {
				continue
			}
			s.applyMotion(controller, motion.Transition{
				From:    applied,
				To:      mode,
				Percent: math.Float64frombits(s.switchPercent.Load()),
			})
			applied = mode
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Fatal() {
				go s.fail(runID, msg)
				return
			}
			s.handleMessage(msg)
		case <-ticker.C:
			s.publishStats()
		}
	}
}

func (s *Session) applyMotion(controller *recording.Controller, tr motion.Transition) {
	controller.OnMotionModeChanged(tr.To)
	s.logger.Info("Motion mode changed", "from", tr.From.String(), "to", tr.To.String(), "percent", tr.Percent)
	s.publish(events.MotionModeChangedEvent{
		Index:     s.index,
		Camera:    s.settings.Name,
		Mode:      tr.To.String(),
		Percent:   tr.Percent,
		Timestamp: s.timestamp(),
	})
}

func (s *Session) handleMessage(msg pipeline.Message) {
	switch msg.Kind {
	case pipeline.MessageWarning:
		s.logger.Warn("Pipeline warning", "source", msg.Source, "message", msg.Text, "debug", msg.Debug)
		s.publishMessage(msg)
	case pipeline.MessageStateChanged:
		s.logger.Debug("Pipeline state changed", "from", msg.OldState, "to", msg.NewState)
	}
}

// fail moves the session to Error unless the failing graph has already
// been replaced or stopped.
func (s *Session) fail(runID uint64, msg pipeline.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runID != runID || s.graph == nil {
		return
	}

	rerr := runtimeError(msg)
	s.logger.Error("Pipeline failed",
		"category", msg.Category.String(),
		"source", msg.Source,
		"error", msg.Text,
		"debug", msg.Debug)
	s.publishMessage(msg)

	if err := s.teardownLocked(context.Background(), false); err != nil {
		s.logger.Warn("Teardown after failure incomplete", "error", err)
	}
	s.setState(StateError, rerr)
}

func (s *Session) publishMessage(msg pipeline.Message) {
	ev := events.PipelineMessageEvent{
		Index:     s.index,
		Camera:    s.settings.Name,
		Level:     msg.Kind.String(),
		Source:    msg.Source,
		Message:   msg.Text,
		Debug:     msg.Debug,
		Timestamp: s.timestamp(),
	}
	if msg.Fatal() {
		ev.Category = msg.Category.String()
	}
	s.publish(ev)
}

func (s *Session) publishStats() {
	st := s.shaper.Stats()
	s.publish(events.FrameStatsEvent{
		Index:          s.index,
		Camera:         s.settings.Name,
		LiveFrames:     s.liveFrames.Load(),
		SkippedFrames:  s.skippedFrames.Load(),
		KeptBuffers:    st.Kept,
		DroppedBuffers: st.Dropped,
		Timestamp:      s.timestamp(),
	})
}

func (s *Session) recordingStarted(rec recording.Recording) {
	s.publish(events.RecordingStartedEvent{
		Index:       s.index,
		Camera:      s.settings.Name,
		RecordingID: rec.ID,
		Path:        rec.Path,
		Generation:  rec.Generation,
		Timestamp:   s.timestamp(),
	})
}

func (s *Session) recordingFinished(rec recording.Recording) {
	s.publish(events.RecordingFinishedEvent{
		Index:       s.index,
		Camera:      s.settings.Name,
		RecordingID: rec.ID,
		Path:        rec.Path,
		Generation:  rec.Generation,
		Bytes:       rec.Bytes,
		Discarded:   rec.Discarded,
		Seconds:     rec.Duration().Seconds(),
		Timestamp:   s.timestamp(),
	})
}
