package session

import (
	"errors"
	"fmt"

	"github.com/smazurov/camrecd/internal/pipeline"
)

// Control errors.
var (
	ErrAlreadyRunning = errors.New("session already ingesting")
	ErrNotRunning     = errors.New("session not ingesting")
)

// RuntimeError is a fatal bus message that moved the session to Error.
type RuntimeError struct {
	Category pipeline.ErrorCategory
	Source   string
	Message  string
	Debug    string
}

func (e *RuntimeError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s error from %s: %s", e.Category, e.Source, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

func runtimeError(msg pipeline.Message) *RuntimeError {
	return &RuntimeError{
		Category: msg.Category,
		Source:   msg.Source,
		Message:  msg.Text,
		Debug:    msg.Debug,
	}
}
