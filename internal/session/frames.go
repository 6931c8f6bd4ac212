package session

import (
	"math"

	"github.com/smazurov/camrecd/internal/media"
	"github.com/smazurov/camrecd/internal/motion"
)

// onFrame runs on the live branch's streaming thread and is the only
// writer of detector and filter state.
func (s *Session) onFrame(frame media.Frame) {
	s.liveFrames.Add(1)

	if reason := s.filter.Check(frame); reason != motion.Accept {
		s.skippedFrames.Add(1)
		if reason != motion.RejectWarmup {
			s.logger.Debug("Frame skipped", "reason", string(reason), "bytes", len(frame.Data))
		}
		return
	}

	result, transition, changed := s.detector.Observe(frame)
	s.motionPercent.Store(math.Float64bits(result.Percent))
	if changed {
		s.switchPercent.Store(math.Float64bits(transition.Percent))
		s.motionMode.Store(int32(transition.To))
		select {
		case s.motionWake <- struct{}{}:
		default:
		}
	}

	if s.liveView.Load() && s.opts.Display != nil {
		s.opts.Display.Show(s.index, frame)
	}
}
