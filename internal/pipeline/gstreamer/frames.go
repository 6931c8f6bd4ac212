package gstreamer

import (
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/smazurov/camrecd/internal/media"
)

// newSample copies one live frame out of the appsink. Runs on the
// appsink streaming thread.
func (g *Graph) newSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	if g.onFrame == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	raw := mapInfo.Bytes()
	if len(raw) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	data := make([]byte, len(raw))
	copy(data, raw)
	buffer.Unmap()

	pts := buffer.PresentationTimestamp()
	if pts < 0 {
		pts = 0
	}

	g.onFrame(media.Frame{
		Width:     g.cfg.LiveWidth,
		Height:    g.cfg.LiveHeight,
		Format:    media.PixelFormatRGB,
		Data:      data,
		PTS:       pts,
		Corrupted: buffer.HasFlags(gst.BufferFlagCorrupted),
		Captured:  time.Now(),
	})
	return gst.FlowOK
}
