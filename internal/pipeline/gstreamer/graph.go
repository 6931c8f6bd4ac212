// Package gstreamer builds the per-camera graph with go-gst:
//
//	rtspsrc -> depay -> queue -> parse -> decodebin -> tee
//	tee -> queue -> videoconvert -> videoscale -> videorate -> caps(RGB) -> appsink
//	tee -> queue -> valve -> videoconvert -> videoscale -> videorate -> caps
//	    [-> encoder -> parse -> matroskamux -> filesink]   one generation per recording
//
// The bracketed stages are attached and removed by RecordBranch while the
// graph keeps playing.
package gstreamer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/smazurov/camrecd/internal/media"
	"github.com/smazurov/camrecd/internal/pipeline"
	"github.com/smazurov/camrecd/internal/shaper"
)

const messageBuffer = 16

var initOnce sync.Once

// Init initializes GStreamer once per process.
func Init() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// Options configures Build.
type Options struct {
	Config pipeline.Config
	// Name prefixes element names so graphs stay distinguishable in logs.
	Name string
	// Shaper rewrites recording timestamps at the encoder input.
	Shaper *shaper.Shaper
	// OnFrame receives every live frame on a streaming thread.
	OnFrame func(media.Frame)
	Logger  *slog.Logger
}

// Graph is one camera's running pipeline.
type Graph struct {
	cfg     pipeline.Config
	name    string
	logger  *slog.Logger
	shaper  *shaper.Shaper
	onFrame func(media.Frame)

	pipeline *gst.Pipeline
	depay    *gst.Element
	tee      *gst.Element
	valve    *gst.Element
	recTail  *gst.Element

	branch *RecordBranch

	messages    chan pipeline.Message
	stopMonitor chan struct{}
	monitorDone chan struct{}
	stopOnce    sync.Once

	srcLink    pipeline.Continuation
	decodeLink pipeline.Continuation
}

// Build creates and links every fixed element. Nothing is playing yet.
// On failure the half-built pipeline is set to NULL and dropped.
func Build(opts Options) (*Graph, error) {
	if opts.Shaper == nil {
		return nil, fmt.Errorf("shaper is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	Init()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{
		cfg:         opts.Config,
		name:        elementPrefix(opts.Name),
		logger:      logger,
		shaper:      opts.Shaper,
		onFrame:     opts.OnFrame,
		messages:    make(chan pipeline.Message, messageBuffer),
		stopMonitor: make(chan struct{}),
		monitorDone: make(chan struct{}),
	}

	p, err := gst.NewPipeline(g.name + "pipeline")
	if err != nil {
		return nil, pipeline.CreationError("pipeline", err)
	}
	g.pipeline = p

	if err := g.buildIngest(); err != nil {
		g.discard()
		return nil, err
	}
	if err := g.buildLive(); err != nil {
		g.discard()
		return nil, err
	}
	if err := g.buildRecording(); err != nil {
		g.discard()
		return nil, err
	}
	g.branch = &RecordBranch{graph: g}
	return g, nil
}

func (g *Graph) buildIngest() error {
	src, err := g.element("rtspsrc", "source")
	if err != nil {
		return err
	}
	src.SetProperty("location", g.cfg.URI)
	src.SetProperty("latency", g.cfg.LatencyMS())
	src.SetProperty("drop-on-latency", true)
	src.SetProperty("timeout", g.cfg.TimeoutMicros())
	src.SetProperty("protocols", g.cfg.Protocols())

	depay, err := g.element(g.cfg.Depayloader(), "depay")
	if err != nil {
		return err
	}
	depay.SetProperty("request-keyframe", true)
	g.depay = depay

	queue, err := g.element("queue", "queue_net")
	if err != nil {
		return err
	}
	parse, err := g.element(g.cfg.Parser(), "parse")
	if err != nil {
		return err
	}
	decoder, err := g.element("decodebin", "decoder")
	if err != nil {
		return err
	}
	tee, err := g.element("tee", "tee")
	if err != nil {
		return err
	}
	tee.SetProperty("allow-not-linked", true)
	g.tee = tee

	if err := g.pipeline.AddMany(src, depay, queue, parse, decoder, tee); err != nil {
		return pipeline.LinkError("pipeline", "ingest", err)
	}
	if err := gst.ElementLinkMany(depay, queue, parse, decoder); err != nil {
		return pipeline.LinkError(depay.GetName(), decoder.GetName(), err)
	}

	src.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		g.linkSourcePad(pad)
	})
	decoder.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		g.linkDecodedPad(pad)
	})
	return nil
}

// linkSourcePad connects the first video RTP pad rtspsrc exposes. Other
// pads, and pads that fail to link, leave the depayloader waiting.
func (g *Graph) linkSourcePad(pad *gst.Pad) {
	info := padInfo(pad)
	sink := g.depay.GetStaticPad("sink")
	if sink == nil {
		return
	}
	wanted := pipeline.SourcePadWanted(info) && !sink.IsLinked()
	if !wanted && info.Name != "" {
		g.logger.Debug("Ignoring source pad", "pad", pad.GetName(), "caps", info.Name, "media", info.Media)
	}
	g.offer(&g.srcLink, wanted, pad, sink, "source")
}

// linkDecodedPad connects the first raw video pad decodebin exposes.
func (g *Graph) linkDecodedPad(pad *gst.Pad) {
	info := padInfo(pad)
	if !pipeline.DecodedPadWanted(info) {
		g.logger.Debug("Ignoring non-video decoder pad", "caps", info.Name)
		return
	}
	sink := g.tee.GetStaticPad("sink")
	if sink == nil {
		return
	}
	g.offer(&g.decodeLink, !sink.IsLinked(), pad, sink, "decoder")
}

func (g *Graph) offer(c *pipeline.Continuation, wanted bool, pad, sink *gst.Pad, role string) {
	linked, err := c.Offer(wanted, func() error {
		if ret := pad.Link(sink); ret != gst.PadLinkOK {
			return fmt.Errorf("link %s: %v", pad.GetName(), ret)
		}
		return nil
	})
	switch {
	case err != nil:
		g.logger.Warn("Pad link failed, waiting for another pad", "role", role, "pad", pad.GetName(), "error", err)
	case linked:
		g.logger.Debug("Pad linked", "role", role, "pad", pad.GetName())
	}
}

// padInfo reads the first caps structure, falling back to a caps query
// when the pad has not negotiated yet.
func padInfo(pad *gst.Pad) pipeline.PadInfo {
	caps := pad.GetCurrentCaps()
	if caps == nil || caps.GetSize() == 0 {
		caps = pad.QueryCaps(nil)
	}
	if caps == nil || caps.GetSize() == 0 {
		return pipeline.PadInfo{}
	}
	st := caps.GetStructureAt(0)
	info := pipeline.PadInfo{Name: st.Name()}
	if v, err := st.GetValue("media"); err == nil {
		if media, ok := v.(string); ok {
			info.Media = media
		}
	}
	return info
}

func (g *Graph) buildLive() error {
	queue, err := g.element("queue", "queue_live")
	if err != nil {
		return err
	}
	queue.SetProperty("leaky", 2)
	queue.SetProperty("max-size-buffers", uint(2))

	convert, err := g.element("videoconvert", "convert_live")
	if err != nil {
		return err
	}
	scale, err := g.element("videoscale", "scale_live")
	if err != nil {
		return err
	}
	rate, err := g.element("videorate", "rate_live")
	if err != nil {
		return err
	}
	rate.SetProperty("drop-only", true)

	caps, err := g.element("capsfilter", "caps_live")
	if err != nil {
		return err
	}
	caps.SetProperty("caps", gst.NewCapsFromString(g.cfg.LiveCaps()))

	sink, err := app.NewAppSink()
	if err != nil {
		return pipeline.CreationError("appsink", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", uint(1))
	sink.SetProperty("drop", true)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.newSample,
	})

	if err := g.pipeline.AddMany(queue, convert, scale, rate, caps, sink.Element); err != nil {
		return pipeline.LinkError("pipeline", "live branch", err)
	}
	if err := gst.ElementLinkMany(g.tee, queue, convert, scale, rate, caps, sink.Element); err != nil {
		return pipeline.LinkError(g.tee.GetName(), "appsink", err)
	}
	return nil
}

func (g *Graph) buildRecording() error {
	queue, err := g.element("queue", "queue_record")
	if err != nil {
		return err
	}
	valve, err := g.element("valve", "valve_record")
	if err != nil {
		return err
	}
	valve.SetProperty("drop", true)
	g.valve = valve

	convert, err := g.element("videoconvert", "convert_record")
	if err != nil {
		return err
	}
	scale, err := g.element("videoscale", "scale_record")
	if err != nil {
		return err
	}
	rate, err := g.element("videorate", "rate_record")
	if err != nil {
		return err
	}
	caps, err := g.element("capsfilter", "caps_record")
	if err != nil {
		return err
	}
	caps.SetProperty("caps", gst.NewCapsFromString(g.cfg.RecordCaps()))
	g.recTail = caps

	if err := g.pipeline.AddMany(queue, valve, convert, scale, rate, caps); err != nil {
		return pipeline.LinkError("pipeline", "recording branch", err)
	}
	if err := gst.ElementLinkMany(g.tee, queue, valve, convert, scale, rate, caps); err != nil {
		return pipeline.LinkError(g.tee.GetName(), caps.GetName(), err)
	}
	return nil
}

// element instantiates a factory under a graph-unique name.
func (g *Graph) element(factory, role string) (*gst.Element, error) {
	elem, err := gst.NewElementWithName(factory, g.name+role)
	if err != nil {
		return nil, pipeline.CreationError(factory, err)
	}
	return elem, nil
}

// Play starts the graph and its bus monitor.
func (g *Graph) Play() error {
	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("set pipeline playing: %w", err)
	}
	go g.monitor()
	g.logger.Info("Pipeline playing", "uri", g.cfg.URI)
	return nil
}

// Stop sets the graph to NULL. The state change runs in its own goroutine
// so a stalled source cannot hold the caller past ctx.
func (g *Graph) Stop(ctx context.Context) error {
	g.stopOnce.Do(func() {
		close(g.stopMonitor)
	})

	done := make(chan error, 1)
	go func() {
		done <- g.pipeline.SetState(gst.StateNull)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("set pipeline null: %w", err)
		}
		return nil
	case <-ctx.Done():
		g.logger.Warn("Pipeline did not reach NULL in time")
		return ctx.Err()
	}
}

// Messages delivers bus messages. It is closed once the monitor exits.
func (g *Graph) Messages() <-chan pipeline.Message {
	return g.messages
}

// Recording returns the hot-swappable recording branch.
func (g *Graph) Recording() *RecordBranch {
	return g.branch
}

func (g *Graph) discard() {
	if g.pipeline == nil {
		return
	}
	if err := g.pipeline.SetState(gst.StateNull); err != nil {
		g.logger.Warn("Failed to reset half-built pipeline", "error", err)
	}
}

func elementPrefix(name string) string {
	if name == "" {
		return ""
	}
	return name + "_"
}
