package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/camrecd/internal/pipeline"
	"github.com/smazurov/camrecd/internal/recording"
	"github.com/smazurov/camrecd/internal/shaper"
)

// noDuration is GST_CLOCK_TIME_NONE once converted to a clock time.
const noDuration = time.Duration(-1)

// RecordBranch implements recording.Branch on top of a Graph.
type RecordBranch struct {
	graph *Graph
	seq   atomic.Uint64
	mu    sync.Mutex
}

var _ recording.Branch = (*RecordBranch)(nil)

// SetGate toggles the valve in front of the recording stages.
func (b *RecordBranch) SetGate(open bool) error {
	b.graph.valve.SetProperty("drop", !open)
	return nil
}

// Attach builds encoder -> parse -> matroskamux -> filesink behind the
// recording caps filter and brings it to the pipeline's state.
func (b *RecordBranch) Attach(path string) (recording.Generation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.graph
	id := b.seq.Add(1)
	prefix := fmt.Sprintf("%sgen%d_", g.name, id)

	gen := &generation{id: id, graph: g, eos: make(chan struct{})}

	enc, err := newEncoder(g.cfg.EncoderCandidates(), prefix+"encoder")
	if err != nil {
		return nil, err
	}
	gen.encoder = enc

	parse, err := gst.NewElementWithName(g.cfg.RecordParser(), prefix+"parse")
	if err != nil {
		return nil, pipeline.CreationError(g.cfg.RecordParser(), err)
	}
	parse.SetProperty("config-interval", -1)

	mux, err := gst.NewElementWithName("matroskamux", prefix+"muxer")
	if err != nil {
		return nil, pipeline.CreationError("matroskamux", err)
	}

	sink, err := gst.NewElementWithName("filesink", prefix+"filesink")
	if err != nil {
		return nil, pipeline.CreationError("filesink", err)
	}
	sink.SetProperty("location", path)
	sink.SetProperty("sync", false)
	sink.SetProperty("async", false)

	gen.elements = []*gst.Element{enc, parse, mux, sink}

	if err := g.pipeline.AddMany(gen.elements...); err != nil {
		gen.remove()
		return nil, pipeline.LinkError("pipeline", "recording generation", err)
	}
	if err := gst.ElementLinkMany(gen.elements...); err != nil {
		gen.remove()
		return nil, pipeline.LinkError(enc.GetName(), sink.GetName(), err)
	}

	srcPad := g.recTail.GetStaticPad("src")
	sinkPad := enc.GetStaticPad("sink")
	if srcPad == nil || sinkPad == nil {
		gen.remove()
		return nil, pipeline.LinkError(g.recTail.GetName(), enc.GetName(), errors.New("missing static pad"))
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		gen.remove()
		return nil, pipeline.LinkError(g.recTail.GetName(), enc.GetName(), fmt.Errorf("pad link returned %v", ret))
	}
	gen.upstream = srcPad
	gen.encoderSink = sinkPad

	sinkPad.AddProbe(gst.PadProbeTypeBuffer, shapeProbe(g.shaper))
	if fileSinkPad := sink.GetStaticPad("sink"); fileSinkPad != nil {
		fileSinkPad.AddProbe(gst.PadProbeTypeEventDownstream, gen.watchEOS)
	}

	// downstream first so no element pushes into a stopped peer
	for i := len(gen.elements) - 1; i >= 0; i-- {
		if err := gen.elements[i].SetState(gst.StatePlaying); err != nil {
			gen.detach()
			gen.remove()
			return nil, fmt.Errorf("start %s: %w", gen.elements[i].GetName(), err)
		}
	}

	g.logger.Debug("Recording generation attached", "generation", id, "encoder", enc.GetName(), "path", path)
	return gen, nil
}

// newEncoder instantiates the first available candidate.
func newEncoder(candidates []pipeline.Encoder, name string) (*gst.Element, error) {
	var errs []error
	for _, c := range candidates {
		enc, err := gst.NewElementWithName(c.Factory, name)
		if err != nil {
			errs = append(errs, pipeline.CreationError(c.Factory, err))
			continue
		}
		for _, p := range c.Properties {
			enc.SetProperty(p.Name, p.Value)
		}
		return enc, nil
	}
	errs = append(errs, pipeline.ErrNoEncoder)
	return nil, pipeline.CreationError("encoder", errors.Join(errs...))
}

// shapeProbe applies the shaper to every buffer entering the encoder.
func shapeProbe(sh *shaper.Shaper) gst.PadProbeCallback {
	return func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buf := info.GetBuffer()
		if buf == nil {
			return gst.PadProbeOK
		}
		pts := buf.PresentationTimestamp()
		d := sh.Process(pts, pts >= 0)
		if !d.Keep {
			return gst.PadProbeDrop
		}
		if d.Rewrite {
			buf.SetPresentationTimestamp(d.PTS)
			buf.SetDuration(noDuration)
		}
		return gst.PadProbeOK
	}
}

// generation is one attached encoder/mux/sink chain.
type generation struct {
	id    uint64
	graph *Graph

	elements    []*gst.Element
	encoder     *gst.Element
	encoderSink *gst.Pad
	upstream    *gst.Pad

	eos     chan struct{}
	eosOnce sync.Once
	done    atomic.Bool
}

func (gen *generation) ID() uint64 {
	return gen.id
}

// ForceKeyframe sends a downstream force-key-unit event with headers.
func (gen *generation) ForceKeyframe() error {
	s := gst.NewStructure("GstForceKeyUnit")
	if err := s.SetValue("all-headers", true); err != nil {
		return fmt.Errorf("build force-key-unit: %w", err)
	}
	if err := s.SetValue("count", uint(1)); err != nil {
		return fmt.Errorf("build force-key-unit: %w", err)
	}
	ev := gst.NewCustomEvent(gst.EventTypeCustomDownstream, s)
	if !gen.encoderSink.SendEvent(ev) {
		return fmt.Errorf("encoder %s rejected force-key-unit", gen.encoder.GetName())
	}
	return nil
}

func (gen *generation) watchEOS(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
	if ev := info.GetEvent(); ev != nil && ev.Type() == gst.EventTypeEOS {
		gen.eosOnce.Do(func() { close(gen.eos) })
	}
	return gst.PadProbeOK
}

// Finalize pushes EOS so the muxer writes its index, waits for it to reach
// the file sink for at most drain, then tears the generation down. A zero
// drain skips the wait.
func (gen *generation) Finalize(ctx context.Context, drain time.Duration) error {
	if !gen.done.CompareAndSwap(false, true) {
		return nil
	}
	logger := gen.graph.logger

	if drain > 0 {
		gen.encoderSink.SendEvent(gst.NewEOSEvent())
		timer := time.NewTimer(drain)
		select {
		case <-gen.eos:
		case <-timer.C:
			logger.Warn("Recording did not drain in time", "generation", gen.id, "drain", drain)
		case <-ctx.Done():
		}
		timer.Stop()
	}

	gen.detach()
	return gen.stopAndRemove()
}

func (gen *generation) detach() {
	if gen.upstream != nil && gen.encoderSink != nil {
		gen.upstream.Unlink(gen.encoderSink)
	}
}

func (gen *generation) stopAndRemove() error {
	var errs []error
	for _, elem := range gen.elements {
		if err := elem.SetState(gst.StateNull); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", elem.GetName(), err))
		}
	}
	gen.remove()
	return errors.Join(errs...)
}

func (gen *generation) remove() {
	for _, elem := range gen.elements {
		if err := gen.graph.pipeline.Remove(elem); err != nil {
			gen.graph.logger.Debug("Failed to remove element", "element", elem.GetName(), "error", err)
		}
	}
}
