package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetRegistry(t *testing.T) {
	t.Helper()
	std.mu.Lock()
	std.config = Config{}
	std.initialized = false
	std.loggers = make(map[string]*slog.Logger)
	std.levels = make(map[string]*slog.LevelVar)
	std.buffer = nil
	std.callback = nil
	std.mu.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetRegistry(t)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"session":  "debug",
			"pipeline": "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"session", true, true, true},
		{"pipeline", false, false, true},
		{"api", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetRegistry(t)

	before := GetLogger("recording")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"recording": "debug"}})

	// the LevelVar is shared, so the early handle picks up the new level
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("early logger should have debug enabled after Initialize")
	}
	if !GetLogger("recording").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("rebuilt logger should have debug enabled")
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "info"})

	logger := GetLogger("motion")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should start disabled")
	}

	if !SetModuleLevel("motion", "debug") {
		t.Fatal("SetModuleLevel rejected a valid level")
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled after SetModuleLevel")
	}
	if SetModuleLevel("motion", "verbose") {
		t.Error("SetModuleLevel accepted an invalid level")
	}
	if got := ModuleLevels()["motion"]; got != "debug" {
		t.Errorf("ModuleLevels()[motion] = %q, want debug", got)
	}
}

func TestBufferCapturesModuleAndAttributes(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "debug", BufferSize: 10})

	var seen []LogEntry
	SetLogCallback(func(e LogEntry) { seen = append(seen, e) })

	logger := ForCamera(GetLogger("session"), 2, "Garage")
	logger.Info("Ingesting", "uri", "rtsp://cam/stream", "latency", 50*time.Millisecond, "error", errors.New("boom"))

	entries := GetBuffer().ReadAll()
	if len(entries) != 1 {
		t.Fatalf("buffered %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "session" {
		t.Errorf("module = %q, want session", e.Module)
	}
	if e.Level != "info" || e.Message != "Ingesting" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attributes["camera"] != "Garage" {
		t.Errorf("camera attr = %v", e.Attributes["camera"])
	}
	if e.Attributes["latency"] != "50ms" {
		t.Errorf("latency attr = %v, want 50ms", e.Attributes["latency"])
	}
	if e.Attributes["error"] != "boom" {
		t.Errorf("error attr = %v, want boom", e.Attributes["error"])
	}
	if e.Seq == 0 {
		t.Error("entry has no sequence number")
	}
	if len(seen) != 1 || seen[0].Seq != e.Seq {
		t.Errorf("callback entries = %+v", seen)
	}
}

func TestBufferHandlerGroups(t *testing.T) {
	resetRegistry(t)
	Initialize(Config{Level: "info"})

	logger := slog.New(NewBufferHandler(slog.LevelInfo)).WithGroup("shaper").With("mode", "low")
	logger.Info("tick", slog.Group("stats", "kept", 3))

	entries := GetBuffer().ReadAll()
	if len(entries) != 1 {
		t.Fatalf("buffered %d entries, want 1", len(entries))
	}
	attrs := entries[0].Attributes
	if attrs["shaper.mode"] != "low" {
		t.Errorf("shaper.mode = %v", attrs["shaper.mode"])
	}
	if _, ok := attrs["shaper.stats.kept"]; !ok {
		t.Errorf("nested group attr missing: %v", attrs)
	}
}

func TestFanoutRespectsLevels(t *testing.T) {
	var buf bytes.Buffer
	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(Fanout(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")
	logger.Info("both handlers")

	output := buf.String()
	if got := strings.Count(output, "debug only message"); got != 1 {
		t.Errorf("debug message written %d times, want 1", got)
	}
	if got := strings.Count(output, "both handlers"); got != 2 {
		t.Errorf("info message written %d times, want 2", got)
	}
	if got := strings.Count(output, "module=test"); got != 3 {
		t.Errorf("module attr written %d times, want 3", got)
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("down") }

func TestFanoutContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	ok := slog.NewTextHandler(&buf, nil)
	multi := Fanout(failingHandler{ok}, ok)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0)
	if err := multi.Handle(context.Background(), r); err == nil {
		t.Error("expected the failing handler's error")
	}
	if !strings.Contains(buf.String(), "still written") {
		t.Error("second handler did not receive the record")
	}
}

func TestFanoutFlattens(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)

	if got := Fanout(h, nil); got != h {
		t.Errorf("single handler should be returned unwrapped, got %T", got)
	}
	nested := Fanout(Fanout(h, h), h)
	f, ok := nested.(fanout)
	if !ok || len(f) != 3 {
		t.Fatalf("nested fanout = %#v, want 3 flat members", nested)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{" info ", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil || *got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAddJournalField(t *testing.T) {
	fields := map[string]string{}
	addJournalField(fields, slog.Int("index", 3), nil)
	addJournalField(fields, slog.Bool("motion", true), []string{"state"})
	addJournalField(fields, slog.Group("rec", slog.String("path", "/tmp/a.mkv")), nil)
	addJournalField(fields, slog.Attr{}, nil)

	want := map[string]string{
		"INDEX":        "3",
		"STATE_MOTION": "true",
		"REC_PATH":     "/tmp/a.mkv",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, fields[k], v)
		}
	}
	if len(fields) != len(want) {
		t.Errorf("fields = %v", fields)
	}
}
