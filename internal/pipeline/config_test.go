package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
)

func testSettings() cameras.Settings {
	return cameras.Settings{Name: "Front Door", URI: "rtsp://10.0.0.5/stream"}.Normalize(0)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(testSettings())

	if cfg.URI != "rtsp://10.0.0.5/stream" {
		t.Errorf("URI = %q", cfg.URI)
	}
	if cfg.Latency != 50*time.Millisecond {
		t.Errorf("Latency = %v, want 50ms", cfg.Latency)
	}
	if cfg.RecordCodec != cfg.Codec {
		t.Errorf("RecordCodec = %q, want source codec %q", cfg.RecordCodec, cfg.Codec)
	}
	if cfg.TimeoutMicros() != 5000000 {
		t.Errorf("TimeoutMicros() = %d, want 5000000", cfg.TimeoutMicros())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfig_Caps(t *testing.T) {
	cfg := FromSettings(testSettings())

	want := "video/x-raw,format=RGB,width=1280,height=720,framerate=15/1"
	if got := cfg.LiveCaps(); got != want {
		t.Errorf("LiveCaps() = %q, want %q", got, want)
	}
	want = "video/x-raw,width=1280,height=720,framerate=25/1"
	if got := cfg.RecordCaps(); got != want {
		t.Errorf("RecordCaps() = %q, want %q", got, want)
	}
}

func TestConfig_Protocols(t *testing.T) {
	tests := []struct {
		transport cameras.Transport
		want      int
	}{
		{cameras.TransportUDP, 1},
		{cameras.TransportTCP, 4},
		{cameras.TransportAuto, 5},
		{"", 1},
	}
	for _, tt := range tests {
		cfg := Config{Transport: tt.transport}
		if got := cfg.Protocols(); got != tt.want {
			t.Errorf("Protocols(%q) = %d, want %d", tt.transport, got, tt.want)
		}
	}
}

func TestConfig_CodecElements(t *testing.T) {
	tests := []struct {
		codec   cameras.Codec
		depay   string
		parser  string
		encoder string
	}{
		{cameras.CodecH264, "rtph264depay", "h264parse", "x264enc"},
		{cameras.CodecH265, "rtph265depay", "h265parse", "x265enc"},
	}
	for _, tt := range tests {
		t.Run(string(tt.codec), func(t *testing.T) {
			cfg := Config{Codec: tt.codec, RecordCodec: tt.codec}
			if got := cfg.Depayloader(); got != tt.depay {
				t.Errorf("Depayloader() = %q, want %q", got, tt.depay)
			}
			if got := cfg.Parser(); got != tt.parser {
				t.Errorf("Parser() = %q, want %q", got, tt.parser)
			}
			candidates := cfg.EncoderCandidates()
			if len(candidates) != 3 {
				t.Fatalf("got %d candidates, want 3", len(candidates))
			}
			if !strings.HasPrefix(candidates[0].Factory, "nv") || !strings.HasPrefix(candidates[1].Factory, "vaapi") {
				t.Errorf("hardware encoders not preferred: %q, %q", candidates[0].Factory, candidates[1].Factory)
			}
			if got := candidates[2].Factory; got != tt.encoder {
				t.Errorf("software fallback = %q, want %q", got, tt.encoder)
			}
		})
	}
}

func TestConfig_EncoderBitrate(t *testing.T) {
	cfg := Config{BitrateKbps: 800}
	for _, enc := range cfg.EncoderCandidates() {
		found := false
		for _, p := range enc.Properties {
			if p.Name == "bitrate" {
				found = true
				if v, ok := p.Value.(uint); !ok || v != 800 {
					t.Errorf("%s bitrate = %v, want uint 800", enc.Factory, p.Value)
				}
			}
		}
		if !found {
			t.Errorf("%s has no bitrate property", enc.Factory)
		}
	}
}

func TestConfig_RequiredElements(t *testing.T) {
	cfg := FromSettings(testSettings())
	elements := strings.Join(cfg.RequiredElements(), ",")
	for _, name := range []string{"rtspsrc", "tee", "valve", "matroskamux", "filesink", "appsink", "h265parse"} {
		if !strings.Contains(elements, name) {
			t.Errorf("RequiredElements() missing %s", name)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	good := FromSettings(testSettings())

	noURI := good.WithURI("")
	badLive := good
	badLive.LiveFPS = 0
	badRecord := good
	badRecord.RecordWidth = -1

	for name, cfg := range map[string]Config{"no uri": noURI, "live": badLive, "record": badRecord} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", name)
		}
	}
}
