// Package cameras holds per-camera settings and their TOML-backed store.
package cameras

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Codec is the video codec carried by the RTSP source.
type Codec string

// Supported codecs.
const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
)

// Transport selects the RTSP lower transport.
type Transport string

// Supported transports.
const (
	TransportUDP  Transport = "udp"
	TransportTCP  Transport = "tcp"
	TransportAuto Transport = "auto"
)

// Defaults applied by Normalize to zero fields.
const (
	DefaultOutputDir           = "recordings"
	DefaultCodec               = CodecH265
	DefaultTransport           = TransportUDP
	DefaultLatencyMS           = 50
	DefaultLiveWidth           = 1280
	DefaultLiveHeight          = 720
	DefaultLiveFPS             = 15
	DefaultRecWidth            = 1280
	DefaultRecHeight           = 720
	DefaultNormalFPS           = 25
	DefaultLowFPS              = 1
	DefaultBitrateKbps         = 1000
	DefaultMotionThreshold     = 1.0
	DefaultMotionFramesToStart = 10
	DefaultFramesToStop        = 40
	DefaultCompression         = 10
)

// Settings configures one camera. Zero numeric fields take defaults.
type Settings struct {
	Name      string    `toml:"name" json:"name"`
	URI       string    `toml:"uri" json:"uri"`
	OutputDir string    `toml:"output_dir,omitempty" json:"output_dir,omitempty"`
	Enabled   *bool     `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Codec     Codec     `toml:"codec,omitempty" json:"codec,omitempty"`
	Transport Transport `toml:"transport,omitempty" json:"transport,omitempty"`
	LatencyMS int       `toml:"latency_ms,omitempty" json:"latency_ms,omitempty"`

	LiveWidth  int `toml:"live_width,omitempty" json:"live_width,omitempty"`
	LiveHeight int `toml:"live_height,omitempty" json:"live_height,omitempty"`
	LiveFPS    int `toml:"live_fps,omitempty" json:"live_fps,omitempty"`

	RecWidth    int `toml:"rec_width,omitempty" json:"rec_width,omitempty"`
	RecHeight   int `toml:"rec_height,omitempty" json:"rec_height,omitempty"`
	NormalFPS   int `toml:"normal_fps,omitempty" json:"normal_fps,omitempty"`
	LowFPS      int `toml:"low_fps,omitempty" json:"low_fps,omitempty"`
	Compression int `toml:"compression,omitempty" json:"compression,omitempty"`
	BitrateKbps int `toml:"bitrate_kbps,omitempty" json:"bitrate_kbps,omitempty"`

	MotionThreshold      float64 `toml:"motion_threshold,omitempty" json:"motion_threshold,omitempty"`
	MotionFramesToStart  int     `toml:"motion_frames_to_start,omitempty" json:"motion_frames_to_start,omitempty"`
	NoMotionFramesToStop int     `toml:"no_motion_frames_to_stop,omitempty" json:"no_motion_frames_to_stop,omitempty"`

	RecordOnStart bool   `toml:"record_on_start,omitempty" json:"record_on_start,omitempty"`
	LiveView      *bool  `toml:"live_view,omitempty" json:"live_view,omitempty"`
	MaxSegment    string `toml:"max_segment,omitempty" json:"max_segment,omitempty"`
}

// IsEnabled reports whether the camera should run. Unset means enabled.
func (s Settings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LiveViewEnabled reports the initial live-view flag. Unset means enabled.
func (s Settings) LiveViewEnabled() bool {
	return s.LiveView == nil || *s.LiveView
}

// Segment returns the rotation interval, zero when unlimited or invalid.
func (s Settings) Segment() time.Duration {
	if s.MaxSegment == "" {
		return 0
	}
	d, err := time.ParseDuration(s.MaxSegment)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// KeepEvery is how many recording buffers arrive per kept buffer in low
// rate: 25 at the default 25/1 fps.
func (s Settings) KeepEvery() int {
	if s.LowFPS <= 0 || s.NormalFPS <= s.LowFPS {
		return 1
	}
	return s.NormalFPS / s.LowFPS
}

// DisplayName is the configured name or Camera_<index+1>.
func (s Settings) DisplayName(index int) string {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Sprintf("Camera_%d", index+1)
	}
	return s.Name
}

// Normalize returns a copy with defaults applied.
func (s Settings) Normalize(index int) Settings {
	s.Name = s.DisplayName(index)
	s.URI = strings.TrimSpace(s.URI)
	s.Codec = Codec(strings.ToLower(string(s.Codec)))
	s.Transport = Transport(strings.ToLower(string(s.Transport)))

	setString(&s.OutputDir, DefaultOutputDir)
	if s.Codec == "" {
		s.Codec = DefaultCodec
	}
	if s.Transport == "" {
		s.Transport = DefaultTransport
	}
	setInt(&s.LatencyMS, DefaultLatencyMS)
	setInt(&s.LiveWidth, DefaultLiveWidth)
	setInt(&s.LiveHeight, DefaultLiveHeight)
	setInt(&s.LiveFPS, DefaultLiveFPS)
	setInt(&s.RecWidth, DefaultRecWidth)
	setInt(&s.RecHeight, DefaultRecHeight)
	setInt(&s.NormalFPS, DefaultNormalFPS)
	setInt(&s.LowFPS, DefaultLowFPS)
	setInt(&s.Compression, DefaultCompression)
	setInt(&s.BitrateKbps, DefaultBitrateKbps)
	setInt(&s.MotionFramesToStart, DefaultMotionFramesToStart)
	setInt(&s.NoMotionFramesToStop, DefaultFramesToStop)
	if s.MotionThreshold == 0 {
		s.MotionThreshold = DefaultMotionThreshold
	}
	return s
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setString(v *string, def string) {
	if strings.TrimSpace(*v) == "" {
		*v = def
	}
}

// Validate checks normalized settings.
func (s Settings) Validate() error {
	var errs []error

	if s.URI == "" {
		errs = append(errs, errors.New("uri is required"))
	} else if err := ValidateURI(s.URI); err != nil {
		errs = append(errs, err)
	}
	if s.Codec != CodecH264 && s.Codec != CodecH265 {
		errs = append(errs, fmt.Errorf("codec %q: want h264 or h265", s.Codec))
	}
	switch s.Transport {
	case TransportUDP, TransportTCP, TransportAuto:
	default:
		errs = append(errs, fmt.Errorf("transport %q: want udp, tcp or auto", s.Transport))
	}

	positive := []struct {
		name  string
		value int
	}{
		{"latency_ms", s.LatencyMS},
		{"live_width", s.LiveWidth},
		{"live_height", s.LiveHeight},
		{"live_fps", s.LiveFPS},
		{"rec_width", s.RecWidth},
		{"rec_height", s.RecHeight},
		{"normal_fps", s.NormalFPS},
		{"low_fps", s.LowFPS},
		{"compression", s.Compression},
		{"bitrate_kbps", s.BitrateKbps},
		{"motion_frames_to_start", s.MotionFramesToStart},
		{"no_motion_frames_to_stop", s.NoMotionFramesToStop},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}

	if s.LowFPS > s.NormalFPS {
		errs = append(errs, fmt.Errorf("low_fps %d exceeds normal_fps %d", s.LowFPS, s.NormalFPS))
	}
	if s.MotionThreshold <= 0 || s.MotionThreshold > 100 {
		errs = append(errs, fmt.Errorf("motion_threshold %.2f: want (0, 100]", s.MotionThreshold))
	}
	if s.MaxSegment != "" {
		if d, err := time.ParseDuration(s.MaxSegment); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("max_segment %q is not a duration", s.MaxSegment))
		}
	}
	if strings.TrimSpace(s.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}

	return errors.Join(errs...)
}

// ValidateURI accepts rtsp and rtsps URLs with a host.
func ValidateURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return fmt.Errorf("uri %q: scheme must be rtsp or rtsps", Redact(raw))
	}
	if u.Host == "" {
		return fmt.Errorf("uri %q: missing host", Redact(raw))
	}
	return nil
}

// Redact hides the password of a URI for logs and API output.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// RestartRequired reports whether moving from old to updated needs the
// camera's graph rebuilt. Enabled, RecordOnStart and LiveView can change
// without one.
func RestartRequired(old, updated Settings) bool {
	a, b := old, updated
	a.Enabled, b.Enabled = nil, nil
	a.RecordOnStart, b.RecordOnStart = false, false
	a.LiveView, b.LiveView = nil, nil
	return a != b
}
