package pipeline

// MessageKind is the subset of bus messages a session reacts to.
type MessageKind int

// Bus message kinds.
const (
	MessageWarning MessageKind = iota
	MessageError
	MessageEOS
	MessageStateChanged
)

func (k MessageKind) String() string {
	switch k {
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	case MessageEOS:
		return "eos"
	case MessageStateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Message is a bus message copied out of the streaming side.
type Message struct {
	Kind     MessageKind
	Source   string
	Text     string
	Debug    string
	Category ErrorCategory
	// OldState and NewState are set for pipeline state changes.
	OldState string
	NewState string
}

// Fatal reports whether the message ends the session.
func (m Message) Fatal() bool {
	return m.Kind == MessageError || m.Kind == MessageEOS
}

// ErrorMessage builds a classified error message.
func ErrorMessage(source, text, debug string) Message {
	return Message{
		Kind:     MessageError,
		Source:   source,
		Text:     text,
		Debug:    debug,
		Category: ClassifyError(text, debug),
	}
}

// EOSMessage is the end-of-stream message, reported as a network failure.
func EOSMessage(source string) Message {
	return Message{
		Kind:     MessageEOS,
		Source:   source,
		Text:     "end of stream",
		Category: CategoryNetwork,
	}
}
