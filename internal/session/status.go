package session

import (
	"math"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/media"
)

// Status is a point-in-time view of a session.
type Status struct {
	Index           int
	Name            string
	State           State
	URI             string
	Recording       bool
	RecordingWanted bool
	RecordingID     string
	RecordingPath   string
	LiveView        bool
	Mode            media.Mode
	MotionPercent   float64
	LiveFrames      uint64
	SkippedFrames   uint64
	StartedAt       time.Time
	LastError       error
}

// Status snapshots the session. The URI has its password redacted.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Index:           s.index,
		Name:            s.settings.Name,
		State:           s.state,
		URI:             cameras.Redact(s.uri),
		RecordingWanted: s.recordingWanted,
		LiveView:        s.liveView.Load(),
		Mode:            media.Mode(s.motionMode.Load()),
		MotionPercent:   math.Float64frombits(s.motionPercent.Load()),
		LiveFrames:      s.liveFrames.Load(),
		SkippedFrames:   s.skippedFrames.Load(),
		LastError:       s.lastErr,
	}
	if s.state == StateIngesting {
		st.StartedAt = s.startedAt
	}
	if s.controller != nil {
		if rec, ok := s.controller.Active(); ok {
			st.Recording = true
			st.RecordingID = rec.ID
			st.RecordingPath = rec.Path
		}
	}
	return st
}
