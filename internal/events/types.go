package events

// Event type constants for kelindar/event.
const (
	TypeStreamStateChanged uint32 = iota + 1
	TypeMotionModeChanged
	TypeRecordingStarted
	TypeRecordingFinished
	TypePipelineMessage
	TypeLiveViewToggled
	TypeFrameStats
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStateChangedEvent is published whenever a session moves between
// idle, ingesting and error.
type StreamStateChangedEvent struct {
	Index     int    `json:"index" example:"0" doc:"Camera index"`
	Camera    string `json:"camera" example:"Porch" doc:"Camera display name"`
	State     string `json:"state" example:"ingesting" doc:"New session state: idle, ingesting, error"`
	Previous  string `json:"previous" example:"idle" doc:"Previous session state"`
	URI       string `json:"uri,omitempty" doc:"Source URI"`
	Error     string `json:"error,omitempty" doc:"Error that caused the transition"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// MotionModeChangedEvent is published when the motion detector confirms a
// new rate mode.
type MotionModeChangedEvent struct {
	Index     int     `json:"index" example:"0" doc:"Camera index"`
	Camera    string  `json:"camera" example:"Porch" doc:"Camera display name"`
	Mode      string  `json:"mode" example:"normal" doc:"New mode: normal or low"`
	Percent   float64 `json:"percent" example:"3.2" doc:"Changed-sample percentage of the deciding frame"`
	Timestamp string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for MotionModeChangedEvent.
func (e MotionModeChangedEvent) Type() uint32 { return TypeMotionModeChanged }

// Motion reports whether the new mode is the full-rate mode.
func (e MotionModeChangedEvent) Motion() bool { return e.Mode == "normal" }

// RecordingStartedEvent is published once the gate is open and the keyframe
// has been requested.
type RecordingStartedEvent struct {
	Index       int    `json:"index" example:"0" doc:"Camera index"`
	Camera      string `json:"camera" example:"Porch" doc:"Camera display name"`
	RecordingID string `json:"recording_id" doc:"Recording identifier"`
	Path        string `json:"path" example:"/var/lib/camrecd/Porch_2025-01-27_10-30-00.mkv" doc:"Output file"`
	Generation  uint64 `json:"generation" example:"3" doc:"Encoder stage generation"`
	Timestamp   string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingFinishedEvent is published after a recording is finalized and
// evaluated for deletion.
type RecordingFinishedEvent struct {
	Index       int     `json:"index" example:"0" doc:"Camera index"`
	Camera      string  `json:"camera" example:"Porch" doc:"Camera display name"`
	RecordingID string  `json:"recording_id" doc:"Recording identifier"`
	Path        string  `json:"path" doc:"Output file"`
	Generation  uint64  `json:"generation" example:"3" doc:"Encoder stage generation"`
	Bytes       int64   `json:"bytes" example:"1048576" doc:"File size at close"`
	Discarded   bool    `json:"discarded" doc:"File was below the minimum viable size and removed"`
	Seconds     float64 `json:"seconds" example:"42.5" doc:"Wall-clock recording length"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingFinishedEvent.
func (e RecordingFinishedEvent) Type() uint32 { return TypeRecordingFinished }

// PipelineMessageEvent carries a warning or error reported by the media graph.
type PipelineMessageEvent struct {
	Index     int    `json:"index" example:"0" doc:"Camera index"`
	Camera    string `json:"camera" example:"Porch" doc:"Camera display name"`
	Level     string `json:"level" example:"error" doc:"warning, error or eos"`
	Category  string `json:"category,omitempty" example:"network" doc:"network, codec, auth or unknown"`
	Source    string `json:"source,omitempty" example:"rtspsrc0" doc:"Reporting element"`
	Message   string `json:"message" doc:"Message text"`
	Debug     string `json:"debug,omitempty" doc:"Debug details"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineMessageEvent.
func (e PipelineMessageEvent) Type() uint32 { return TypePipelineMessage }

// LiveViewToggledEvent is published when live rendering is switched for a camera.
type LiveViewToggledEvent struct {
	Index     int    `json:"index" example:"0" doc:"Camera index"`
	Enabled   bool   `json:"enabled" doc:"Whether frames are handed to the display"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for LiveViewToggledEvent.
func (e LiveViewToggledEvent) Type() uint32 { return TypeLiveViewToggled }

// FrameStatsEvent is a periodic counter snapshot for one session. Counters
// are cumulative since the session started.
type FrameStatsEvent struct {
	Index          int    `json:"index" example:"0" doc:"Camera index"`
	Camera         string `json:"camera" example:"Porch" doc:"Camera display name"`
	LiveFrames     uint64 `json:"live_frames" doc:"Frames delivered on the live branch"`
	SkippedFrames  uint64 `json:"skipped_frames" doc:"Frames rejected by the sanity filter"`
	KeptBuffers    uint64 `json:"kept_buffers" doc:"Recording buffers passed to the encoder"`
	DroppedBuffers uint64 `json:"dropped_buffers" doc:"Recording buffers dropped by rate reduction"`
	Timestamp      string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameStatsEvent.
func (e FrameStatsEvent) Type() uint32 { return TypeFrameStats }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
