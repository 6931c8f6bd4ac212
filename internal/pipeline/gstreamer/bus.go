package gstreamer

import (
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/camrecd/internal/pipeline"
)

const busPollInterval = 50 * time.Millisecond

// monitor polls the bus until Stop. Fatal messages block until delivered
// or stopped; warnings and state changes are dropped when nobody reads.
func (g *Graph) monitor() {
	defer close(g.monitorDone)
	defer close(g.messages)

	bus := g.pipeline.GetPipelineBus()
	for {
		select {
		case <-g.stopMonitor:
			return
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		out, ok := g.translate(msg)
		if !ok {
			continue
		}

		if out.Fatal() {
			select {
			case g.messages <- out:
			case <-g.stopMonitor:
				return
			}
			continue
		}
		select {
		case g.messages <- out:
		default:
		}
	}
}

func (g *Graph) translate(msg *gst.Message) (pipeline.Message, bool) {
	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		if gerr == nil {
			return pipeline.ErrorMessage(msg.Source(), "unknown error", ""), true
		}
		return pipeline.ErrorMessage(msg.Source(), gerr.Error(), gerr.DebugString()), true

	case gst.MessageWarning:
		gerr := msg.ParseWarning()
		if gerr == nil {
			return pipeline.Message{}, false
		}
		return pipeline.Message{
			Kind:   pipeline.MessageWarning,
			Source: msg.Source(),
			Text:   gerr.Error(),
			Debug:  gerr.DebugString(),
		}, true

	case gst.MessageEOS:
		// only a pipeline-wide EOS ends the stream
		if msg.Source() != g.pipeline.GetName() {
			return pipeline.Message{}, false
		}
		return pipeline.EOSMessage(msg.Source()), true

	case gst.MessageStateChanged:
		if msg.Source() != g.pipeline.GetName() {
			return pipeline.Message{}, false
		}
		oldState, newState := msg.ParseStateChanged()
		return pipeline.Message{
			Kind:     pipeline.MessageStateChanged,
			Source:   msg.Source(),
			OldState: oldState.String(),
			NewState: newState.String(),
		}, true

	default:
		return pipeline.Message{}, false
	}
}
