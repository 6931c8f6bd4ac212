package supervisor

import (
	"context"
	"fmt"
	"testing"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/session"
)

func TestSupervisor_Reconcile(t *testing.T) {
	ctx := context.Background()
	sup, log := newTestSupervisor(t, cams("rtsp://a.local/1", "rtsp://b.local/1", "rtsp://c.local/1"))
	if err := sup.StartEnabled(ctx); err != nil {
		t.Fatal(err)
	}
	disabled := false
	liveOff := false
	next := cams("rtsp://a.local/1", "rtsp://b.local/2", "rtsp://c.local/1", "rtsp://d.local/1")
	for i := range next {
		next[i].OutputDir = sup.sessions[0].Settings().OutputDir
	}
	next[0].LiveView = &liveOff
	next[2].Enabled = &disabled

	if err := sup.Reconcile(ctx, next); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	tests := []struct {
		index  int
		state  session.State
		graphs int
		uri    string
	}{
		{0, session.StateIngesting, 1, "rtsp://a.local/1"},
		{1, session.StateIngesting, 2, "rtsp://b.local/2"},
		{2, session.StateIdle, 1, "rtsp://c.local/1"},
		{3, session.StateIngesting, 1, "rtsp://d.local/1"},
	}
	for _, tt := range tests {
		st, err := sup.Status(tt.index)
		if err != nil {
			t.Fatalf("Status(%d) error = %v", tt.index, err)
		}
		if st.State != tt.state {
			t.Errorf("camera %d state = %q, want %q", tt.index, st.State, tt.state)
		}
		built := log.built(cameraName(tt.index))
		if len(built) != tt.graphs {
			t.Errorf("camera %d graphs = %d, want %d", tt.index, len(built), tt.graphs)
			continue
		}
		if got := built[len(built)-1].uri; got != tt.uri {
			t.Errorf("camera %d uri = %q, want %q", tt.index, got, tt.uri)
		}
	}

	if st, _ := sup.Status(0); st.LiveView {
		t.Error("live view flag change was not applied in place")
	}

	if err := sup.Reconcile(ctx, next[:1]); err != nil {
		t.Fatal(err)
	}
	if got := len(sup.List()); got != 1 {
		t.Errorf("cameras after removal = %d, want 1", got)
	}
	if _, ok := sup.State(3); ok {
		t.Error("removed camera still in state map")
	}
}

func TestSupervisor_ReconcileReenable(t *testing.T) {
	ctx := context.Background()
	disabled := false
	settings := cams("rtsp://a.local/1")
	settings[0].Enabled = &disabled
	sup, log := newTestSupervisor(t, settings)

	enabled := true
	next := []cameras.Settings{{URI: "rtsp://a.local/1", OutputDir: settings[0].OutputDir, Enabled: &enabled}}
	if err := sup.Reconcile(ctx, next); err != nil {
		t.Fatal(err)
	}
	if info, _ := sup.State(0); info.State != session.StateIngesting {
		t.Errorf("state = %q, want ingesting", info.State)
	}
	if got := len(log.built("cam0")); got != 1 {
		t.Errorf("graphs = %d, want 1", got)
	}

	if err := sup.Reconcile(ctx, next); err != nil {
		t.Fatal(err)
	}
	if got := len(log.built("cam0")); got != 1 {
		t.Errorf("unchanged reload rebuilt the graph: %d graphs", got)
	}
}

func TestSupervisor_ReconcileRestartKeepsRuntimeRequests(t *testing.T) {
	ctx := context.Background()
	disabled := false
	settings := cams("rtsp://a.local/1", "rtsp://b.local/1", "rtsp://c.local/1")
	settings[2].Enabled = &disabled
	sup, log := newTestSupervisor(t, settings)
	if err := sup.StartEnabled(ctx); err != nil {
		t.Fatal(err)
	}

	if err := sup.SetRecordingActive(ctx, 0, true); err != nil {
		t.Fatal(err)
	}
	if err := sup.SetLiveViewEnabled(0, false); err != nil {
		t.Fatal(err)
	}
	if err := sup.Stop(ctx, 1); err != nil {
		t.Fatal(err)
	}

	enabled := true
	next := cams("rtsp://a.local/2", "rtsp://b.local/2", "rtsp://c.local/2")
	for i := range next {
		next[i].OutputDir = settings[0].OutputDir
	}
	next[2].Enabled = &enabled
	if err := sup.Reconcile(ctx, next); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	st, _ := sup.Status(0)
	if st.State != session.StateIngesting {
		t.Fatalf("camera 0 state = %q, want ingesting", st.State)
	}
	if !st.Recording || !st.RecordingWanted {
		t.Errorf("camera 0 recording = %v wanted = %v after URI change, want both true", st.Recording, st.RecordingWanted)
	}
	if st.LiveView {
		t.Error("camera 0 live view came back on after URI change")
	}
	if got := log.built("cam0"); len(got) != 2 || got[1].uri != "rtsp://a.local/2" {
		t.Errorf("camera 0 graphs = %d, want a rebuild on the new URI", len(got))
	}

	if st, _ := sup.Status(1); st.State != session.StateIdle {
		t.Errorf("stopped camera 1 state = %q, want idle", st.State)
	}
	if got := len(log.built("cam1")); got != 1 {
		t.Errorf("stopped camera 1 graphs = %d, want 1", got)
	}

	if st, _ := sup.Status(2); st.State != session.StateIngesting {
		t.Errorf("newly enabled camera 2 state = %q, want ingesting", st.State)
	}
}

func cameraName(index int) string {
	return fmt.Sprintf("cam%d", index)
}
