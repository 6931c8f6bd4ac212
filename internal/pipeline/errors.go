package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoEncoder is returned when none of the encoder candidates exists.
var ErrNoEncoder = errors.New("no usable encoder")

// StageKind separates the two setup failure modes.
type StageKind string

// Setup failure kinds.
const (
	StageCreation StageKind = "stage_creation"
	StageLink     StageKind = "link"
)

// StageError reports a graph that could not be built. Element names the
// factory that failed to instantiate, or "src -> sink" for a link.
type StageError struct {
	Kind    StageKind
	Element string
	Cause   error
}

func (e *StageError) Error() string {
	verb := "create"
	if e.Kind == StageLink {
		verb = "link"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", verb, e.Element, e.Cause)
	}
	return fmt.Sprintf("%s %s", verb, e.Element)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// CreationError wraps a failed element instantiation.
func CreationError(element string, cause error) *StageError {
	return &StageError{Kind: StageCreation, Element: element, Cause: cause}
}

// LinkError wraps a failed link between two elements or pads.
func LinkError(src, sink string, cause error) *StageError {
	return &StageError{Kind: StageLink, Element: src + " -> " + sink, Cause: cause}
}

// ErrorCategory groups runtime errors by likely cause.
type ErrorCategory int

// Error categories.
const (
	CategoryUnknown ErrorCategory = iota
	CategoryNetwork
	CategoryCodec
	CategoryAuth
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication",
		"credentials", "password", "username",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps",
		"h264", "h265", "not negotiated", "no decoder", "missing plugin",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "rtsp", "not found",
		"could not connect", "failed to connect", "end of stream",
	}
)

// ClassifyError sorts a bus error into a category by keyword. Auth is
// checked first, then codec, then network.
func ClassifyError(message, debug string) ErrorCategory {
	text := strings.ToLower(message + " " + debug)
	switch {
	case containsAny(text, authKeywords):
		return CategoryAuth
	case containsAny(text, codecKeywords):
		return CategoryCodec
	case containsAny(text, networkKeywords):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
