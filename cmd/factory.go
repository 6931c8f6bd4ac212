// Package cmd holds the cobra subcommands and the wiring they share with
// the server.
package cmd

import (
	"github.com/smazurov/camrecd/internal/pipeline/gstreamer"
	"github.com/smazurov/camrecd/internal/recording"
	"github.com/smazurov/camrecd/internal/session"
)

// gstGraph narrows the recording branch to the interface sessions use.
type gstGraph struct {
	*gstreamer.Graph
}

func (g gstGraph) Recording() recording.Branch {
	return g.Graph.Recording()
}

// GraphFactory builds GStreamer graphs for sessions.
func GraphFactory() session.GraphFactory {
	gstreamer.Init()
	return func(spec session.GraphSpec) (session.Graph, error) {
		g, err := gstreamer.Build(gstreamer.Options{
			Config:  spec.Config,
			Name:    spec.Name,
			Shaper:  spec.Shaper,
			OnFrame: spec.OnFrame,
			Logger:  spec.Logger,
		})
		if err != nil {
			return nil, err
		}
		return gstGraph{g}, nil
	}
}
