package media

// Mode is the recording rate selected by motion detection.
type Mode int

// Recording rate modes. LowRate is the resting state.
const (
	LowRate Mode = iota
	NormalRate
)

func (m Mode) String() string {
	switch m {
	case NormalRate:
		return "normal"
	case LowRate:
		return "low"
	default:
		return "unknown"
	}
}

// Motion reports whether the mode represents confirmed motion.
func (m Mode) Motion() bool {
	return m == NormalRate
}
