// Package pipeline describes the per-camera media graph: element choices,
// caps, encoder fallbacks, setup errors and bus message classification.
// The GStreamer implementation lives in the gstreamer subpackage.
package pipeline

import (
	"fmt"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
)

// Graph defaults not covered by camera settings.
const (
	DefaultGOPSize       = 30
	DefaultSourceTimeout = 5 * time.Second
)

// RTSP lower-transport flags understood by rtspsrc "protocols".
const (
	protocolUDP = 1
	protocolTCP = 4
)

// Config is everything needed to build one camera's graph.
type Config struct {
	Name      string
	URI       string
	Codec     cameras.Codec
	Transport cameras.Transport
	Latency   time.Duration

	LiveWidth  int
	LiveHeight int
	LiveFPS    int

	RecordCodec  cameras.Codec
	RecordWidth  int
	RecordHeight int
	NormalFPS    int
	BitrateKbps  int
	GOPSize      int

	SourceTimeout time.Duration
}

// FromSettings derives a graph config from normalized camera settings.
// Recordings are encoded with the source codec.
func FromSettings(s cameras.Settings) Config {
	return Config{
		Name:          s.Name,
		URI:           s.URI,
		Codec:         s.Codec,
		Transport:     s.Transport,
		Latency:       time.Duration(s.LatencyMS) * time.Millisecond,
		LiveWidth:     s.LiveWidth,
		LiveHeight:    s.LiveHeight,
		LiveFPS:       s.LiveFPS,
		RecordCodec:   s.Codec,
		RecordWidth:   s.RecWidth,
		RecordHeight:  s.RecHeight,
		NormalFPS:     s.NormalFPS,
		BitrateKbps:   s.BitrateKbps,
		GOPSize:       DefaultGOPSize,
		SourceTimeout: DefaultSourceTimeout,
	}
}

// WithURI returns a copy pointed at another source.
func (c Config) WithURI(uri string) Config {
	c.URI = uri
	return c
}

// LiveCaps pins the live branch to packed RGB at the live size and rate.
func (c Config) LiveCaps() string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1",
		c.LiveWidth, c.LiveHeight, c.LiveFPS)
}

// RecordCaps pins the recording branch to the recording size at the
// normal rate. The low rate is produced later by dropping buffers.
func (c Config) RecordCaps() string {
	return fmt.Sprintf("video/x-raw,width=%d,height=%d,framerate=%d/1",
		c.RecordWidth, c.RecordHeight, c.NormalFPS)
}

// Protocols returns the rtspsrc lower-transport flags.
func (c Config) Protocols() int {
	switch c.Transport {
	case cameras.TransportTCP:
		return protocolTCP
	case cameras.TransportAuto:
		return protocolUDP | protocolTCP
	default:
		return protocolUDP
	}
}

// LatencyMS is the jitter buffer size in milliseconds.
func (c Config) LatencyMS() uint {
	if c.Latency <= 0 {
		return cameras.DefaultLatencyMS
	}
	return uint(c.Latency / time.Millisecond)
}

// TimeoutMicros is the rtspsrc UDP timeout in microseconds.
func (c Config) TimeoutMicros() uint64 {
	t := c.SourceTimeout
	if t <= 0 {
		t = DefaultSourceTimeout
	}
	return uint64(t / time.Microsecond)
}

// Depayloader is the RTP depayloader for the source codec.
func (c Config) Depayloader() string {
	if c.Codec == cameras.CodecH264 {
		return "rtph264depay"
	}
	return "rtph265depay"
}

// Parser is the bitstream parser for the source codec.
func (c Config) Parser() string {
	return parserFor(c.Codec)
}

// RecordParser is the bitstream parser placed after the encoder.
func (c Config) RecordParser() string {
	return parserFor(c.RecordCodec)
}

func parserFor(codec cameras.Codec) string {
	if codec == cameras.CodecH264 {
		return "h264parse"
	}
	return "h265parse"
}

// Encoder is one encoder factory with the properties it needs for
// low-latency recording.
type Encoder struct {
	Factory    string
	Properties []Property
}

// Property is a single element property assignment. Values carry the
// GObject type they are set as (uint, int, bool).
type Property struct {
	Name  string
	Value any
}

// EncoderCandidates lists encoders for the recording codec in preference
// order: NVENC, VA-API, then software.
func (c Config) EncoderCandidates() []Encoder {
	bitrate := uint(c.BitrateKbps)
	if bitrate == 0 {
		bitrate = cameras.DefaultBitrateKbps
	}
	gop := c.GOPSize
	if gop <= 0 {
		gop = DefaultGOPSize
	}

	codec := "h265"
	if c.RecordCodec == cameras.CodecH264 {
		codec = "h264"
	}

	return []Encoder{
		{
			Factory: "nv" + codec + "enc",
			Properties: []Property{
				{"bitrate", bitrate},
				{"gop-size", gop},
				{"preset", 2},
				{"zerolatency", true},
			},
		},
		{
			Factory: "vaapi" + codec + "enc",
			Properties: []Property{
				{"bitrate", bitrate},
				{"keyframe-period", uint(gop)},
			},
		},
		softwareEncoder(codec, bitrate, gop),
	}
}

func softwareEncoder(codec string, bitrate uint, gop int) Encoder {
	const (
		ultrafast   = 1
		zerolatency = 4
	)
	if codec == "h264" {
		return Encoder{
			Factory: "x264enc",
			Properties: []Property{
				{"bitrate", bitrate},
				{"key-int-max", uint(gop)},
				{"speed-preset", ultrafast},
				{"tune", zerolatency},
			},
		}
	}
	return Encoder{
		Factory: "x265enc",
		Properties: []Property{
			{"bitrate", bitrate},
			{"key-int-max", gop},
			{"speed-preset", ultrafast},
			{"tune", zerolatency},
		},
	}
}

// RequiredElements lists every factory the graph instantiates apart from
// the encoder, which is resolved from EncoderCandidates.
func (c Config) RequiredElements() []string {
	return []string{
		"rtspsrc", c.Depayloader(), "queue", c.Parser(), "decodebin", "tee",
		"videoconvert", "videoscale", "videorate", "capsfilter", "appsink",
		"valve", c.RecordParser(), "matroskamux", "filesink",
	}
}

// Validate rejects configs a graph cannot be built from.
func (c Config) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("source uri is required")
	}
	if c.LiveWidth <= 0 || c.LiveHeight <= 0 || c.LiveFPS <= 0 {
		return fmt.Errorf("invalid live format %dx%d@%d", c.LiveWidth, c.LiveHeight, c.LiveFPS)
	}
	if c.RecordWidth <= 0 || c.RecordHeight <= 0 || c.NormalFPS <= 0 {
		return fmt.Errorf("invalid recording format %dx%d@%d", c.RecordWidth, c.RecordHeight, c.NormalFPS)
	}
	return nil
}
