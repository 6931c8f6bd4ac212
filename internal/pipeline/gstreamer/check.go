package gstreamer

import (
	"errors"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/smazurov/camrecd/internal/pipeline"
)

// ElementStatus reports whether one factory can be instantiated.
type ElementStatus struct {
	Factory   string
	Available bool
	Err       error
}

// CheckElements instantiates every element cfg needs. The encoder row
// names the first candidate that worked, or the last one tried.
func CheckElements(cfg pipeline.Config) ([]ElementStatus, error) {
	Init()

	var statuses []ElementStatus
	var errs []error
	for _, factory := range cfg.RequiredElements() {
		st := probeFactory(factory)
		if st.Err != nil {
			errs = append(errs, st.Err)
		}
		statuses = append(statuses, st)
	}

	var encoder ElementStatus
	for _, c := range cfg.EncoderCandidates() {
		encoder = probeFactory(c.Factory)
		if encoder.Available {
			break
		}
	}
	if !encoder.Available {
		errs = append(errs, pipeline.CreationError("encoder", pipeline.ErrNoEncoder))
	}
	statuses = append(statuses, encoder)

	return statuses, errors.Join(errs...)
}

func probeFactory(factory string) ElementStatus {
	elem, err := gst.NewElement(factory)
	if err != nil {
		return ElementStatus{Factory: factory, Err: pipeline.CreationError(factory, err)}
	}
	_ = elem.SetState(gst.StateNull)
	return ElementStatus{Factory: factory, Available: true}
}
