package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level      string            `toml:"level"`
	Format     string            `toml:"format"`
	BufferSize int               `toml:"buffer_size"`
	Modules    map[string]string `toml:"modules"`
}

type registry struct {
	mu          sync.RWMutex
	config      Config
	initialized bool
	global      *slog.LevelVar
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	buffer      *RingBuffer
	callback    LogCallback
}

var std = &registry{
	global:  &slog.LevelVar{},
	loggers: make(map[string]*slog.Logger),
	levels:  make(map[string]*slog.LevelVar),
}

// Initialize sets up the logging system. Loggers handed out earlier keep
// working: their levels are updated and their handlers rebuilt.
func Initialize(config Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	size := config.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	std.config = config
	std.initialized = true
	std.buffer = NewRingBuffer(size)
	std.global.Set(levelOrDefault(config.Level, slog.LevelInfo))

	for module, levelVar := range std.levels {
		levelVar.Set(std.moduleLevel(module))
		std.loggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, std.global)))
}

// GetBuffer returns the log ring buffer, nil before Initialize.
func GetBuffer() *RingBuffer {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.buffer
}

// SetLogCallback sets a callback invoked for every buffered log entry.
// The API uses it to publish log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.callback = callback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	if logger, ok := std.loggers[module]; ok {
		std.mu.RUnlock()
		return logger
	}
	std.mu.RUnlock()

	std.mu.Lock()
	defer std.mu.Unlock()

	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(std.moduleLevel(module))

	format := "text"
	if std.initialized {
		format = std.config.Format
	}

	logger := slog.New(createHandler(format, levelVar)).With("module", module)
	std.loggers[module] = logger
	std.levels[module] = levelVar
	return logger
}

// SetModuleLevel changes one module's level at runtime. It returns false
// for an unknown level name.
func SetModuleLevel(module, level string) bool {
	parsed := parseLevel(level)
	if parsed == nil {
		return false
	}
	GetLogger(module)

	std.mu.Lock()
	defer std.mu.Unlock()
	std.levels[module].Set(*parsed)
	if std.config.Modules == nil {
		std.config.Modules = make(map[string]string)
	}
	std.config.Modules[module] = level
	return true
}

// ModuleLevels returns the effective level of every module logger created so far.
func ModuleLevels() map[string]string {
	std.mu.RLock()
	defer std.mu.RUnlock()
	out := make(map[string]string, len(std.levels))
	for module, levelVar := range std.levels {
		out[module] = levelToString(levelVar.Level())
	}
	return out
}

// ForCamera scopes a module logger to one camera.
func ForCamera(logger *slog.Logger, index int, name string) *slog.Logger {
	return logger.With("index", index, "camera", name)
}

// moduleLevel must be called with mu held.
func (r *registry) moduleLevel(module string) slog.Level {
	if !r.initialized {
		return slog.LevelInfo
	}
	level := levelOrDefault(r.config.Level, slog.LevelInfo)
	if override, ok := r.config.Modules[module]; ok {
		level = levelOrDefault(override, level)
	}
	return level
}

func (r *registry) sink() (*RingBuffer, LogCallback) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffer, r.callback
}

// createHandler fans out to stdout, the journal when present, and the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	// the buffer handler looks the ring buffer up per record
	handlers = append(handlers, NewBufferHandler(level))

	return Fanout(handlers...)
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or
// regular file rather than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
