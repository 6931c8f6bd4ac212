package models

// LogEntryData is one buffered log record.
type LogEntryData struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogHistoryRequest struct {
	Since uint64 `query:"since" doc:"Only return entries with a larger sequence number"`
	Limit int    `query:"limit" minimum:"0" maximum:"1000" default:"200" doc:"Maximum entries to return"`
}

type LogHistoryData struct {
	Entries []LogEntryData `json:"entries" doc:"Buffered log entries, oldest first"`
	LastSeq uint64         `json:"last_seq" doc:"Sequence number of the newest buffered entry"`
}

type LogHistoryResponse struct {
	Body LogHistoryData
}

type LogLevelsData struct {
	Levels map[string]string `json:"levels" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type SetLogLevelRequest struct {
	Module string `path:"module" example:"session" doc:"Module name"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}
