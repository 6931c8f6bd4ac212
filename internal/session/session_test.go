package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camrecd/internal/cameras"
	"github.com/smazurov/camrecd/internal/events"
	"github.com/smazurov/camrecd/internal/media"
	"github.com/smazurov/camrecd/internal/pipeline"
	"github.com/smazurov/camrecd/internal/recording"
)

const testURI = "rtsp://cam.local/stream"

type fakeGeneration struct {
	id        uint64
	finalized bool
}

func (g *fakeGeneration) ID() uint64           { return g.id }
func (g *fakeGeneration) ForceKeyframe() error { return nil }
func (g *fakeGeneration) Finalize(context.Context, time.Duration) error {
	g.finalized = true
	return nil
}

type fakeBranch struct {
	mu   sync.Mutex
	gate bool
	gens []*fakeGeneration
}

func (b *fakeBranch) Attach(string) (recording.Generation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := &fakeGeneration{id: uint64(len(b.gens) + 1)}
	b.gens = append(b.gens, gen)
	return gen, nil
}

func (b *fakeBranch) SetGate(open bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = open
	return nil
}

func (b *fakeBranch) gateOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gate
}

type fakeGraph struct {
	spec     GraphSpec
	branch   *fakeBranch
	messages chan pipeline.Message
	playErr  error

	mu      sync.Mutex
	played  bool
	stopped bool
}

func (g *fakeGraph) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.played = true
	return g.playErr
}

func (g *fakeGraph) Stop(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	return nil
}

func (g *fakeGraph) isStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

func (g *fakeGraph) Messages() <-chan pipeline.Message { return g.messages }
func (g *fakeGraph) Recording() recording.Branch       { return g.branch }

type fakeFactory struct {
	mu      sync.Mutex
	graphs  []*fakeGraph
	err     error
	playErr error
}

func (f *fakeFactory) build(spec GraphSpec) (Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	g := &fakeGraph{
		spec:     spec,
		branch:   &fakeBranch{},
		messages: make(chan pipeline.Message, 4),
		playErr:  f.playErr,
	}
	f.graphs = append(f.graphs, g)
	return g, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.graphs)
}

func (f *fakeFactory) last() *fakeGraph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.graphs[len(f.graphs)-1]
}

type countingDisplay struct {
	mu    sync.Mutex
	shown int
}

func (d *countingDisplay) Show(int, media.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown++
}

func (d *countingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

type transition struct {
	old, new State
	err      error
}

type harness struct {
	session *Session
	factory *fakeFactory
	display *countingDisplay
	bus     *events.Bus

	mu          sync.Mutex
	transitions []transition
}

func newHarness(t *testing.T, mutate func(*cameras.Settings)) *harness {
	t.Helper()
	settings := cameras.Settings{Name: "Porch", URI: testURI, OutputDir: t.TempDir()}
	if mutate != nil {
		mutate(&settings)
	}
	h := &harness{factory: &fakeFactory{}, display: &countingDisplay{}, bus: events.New()}
	h.session = New(Options{
		Index:         0,
		Settings:      settings,
		Factory:       h.factory.build,
		Display:       h.display,
		Bus:           h.bus,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		RestartDelay:  time.Millisecond,
		KeyframeDelay: time.Millisecond,
		Drain:         time.Millisecond,
		OnStateChange: func(_ int, old, new State, err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.transitions = append(h.transitions, transition{old, new, err})
		},
	})
	t.Cleanup(func() { _ = h.session.Stop(context.Background()) })
	return h
}

func (h *harness) lastTransition() transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.transitions) == 0 {
		return transition{}
	}
	return h.transitions[len(h.transitions)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frame(value byte) media.Frame {
	data := make([]byte, 16*16*3)
	for i := range data {
		data[i] = value
	}
	return media.Frame{Width: 16, Height: 16, Format: media.PixelFormatRGB, Data: data}
}

// feedMotion pushes the warm-up, a baseline frame and enough alternating
// frames to complete a motion run.
func feedMotion(onFrame func(media.Frame), frames int) {
	for i := 0; i < 6; i++ {
		onFrame(frame(100))
	}
	for i := 0; i < frames; i++ {
		if i%2 == 0 {
			onFrame(frame(200))
		} else {
			onFrame(frame(100))
		}
	}
}

func TestSession_StartStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.session.Start(ctx, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.session.State(); got != StateIngesting {
		t.Fatalf("State() = %q, want ingesting", got)
	}
	if got := h.factory.last().spec.Config.URI; got != testURI {
		t.Errorf("graph URI = %q, want %q", got, testURI)
	}
	if err := h.session.Start(ctx, ""); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := h.session.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := h.session.State(); got != StateIdle {
		t.Errorf("State() after Stop = %q, want idle", got)
	}
	if !h.factory.last().isStopped() {
		t.Error("graph was not stopped")
	}
	if err := h.session.Stop(ctx); err != nil {
		t.Errorf("Stop() on idle session = %v, want nil", err)
	}
}

func TestSession_StartFailuresStayIdle(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		err     error
		playErr error
		graphs  int
	}{
		{"invalid uri", "http://cam.local", nil, nil, 0},
		{"stage creation", testURI, pipeline.CreationError("nvh265enc", errors.New("no factory")), nil, 0},
		{"play failure", testURI, nil, errors.New("state change failed"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.factory.err = tt.err
			h.factory.playErr = tt.playErr

			if err := h.session.Start(context.Background(), tt.uri); err == nil {
				t.Fatal("Start() error = nil, want failure")
			}
			if got := h.session.State(); got != StateIdle {
				t.Errorf("State() = %q, want idle", got)
			}
			if got := h.factory.count(); got != tt.graphs {
				t.Errorf("graphs built = %d, want %d", got, tt.graphs)
			}
			if tt.graphs > 0 && !h.factory.last().isStopped() {
				t.Error("unplayable graph was not stopped")
			}
		})
	}
}

func TestSession_StageErrorIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.err = pipeline.LinkError("queue", "valve", nil)

	err := h.session.Start(context.Background(), "")
	var stage *pipeline.StageError
	if !errors.As(err, &stage) || stage.Kind != pipeline.StageLink {
		t.Errorf("Start() error = %v, want link StageError", err)
	}
}

func TestSession_LiveViewToggleKeepsDetectionAndGraph(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	graph := h.factory.last()

	h.session.SetLiveViewEnabled(false)
	feedMotion(graph.spec.OnFrame, 11)

	if got := h.display.count(); got != 0 {
		t.Errorf("display received %d frames while disabled", got)
	}
	waitFor(t, "normal rate", func() bool { return h.session.shaper.Mode() == media.NormalRate })

	st := h.session.Status()
	if st.LiveFrames != 17 {
		t.Errorf("LiveFrames = %d, want 17", st.LiveFrames)
	}
	if st.Mode != media.NormalRate {
		t.Errorf("Mode = %v, want normal", st.Mode)
	}

	h.session.SetLiveViewEnabled(true)
	graph.spec.OnFrame(frame(100))
	if got := h.display.count(); got != 1 {
		t.Errorf("display received %d frames after re-enable, want 1", got)
	}
	if got := h.factory.count(); got != 1 {
		t.Errorf("graphs built = %d, want 1", got)
	}
	if graph.isStopped() {
		t.Error("toggling live view stopped the graph")
	}
}

func TestSession_FilteredFramesNotObserved(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	onFrame := h.factory.last().spec.OnFrame

	for i := 0; i < 5; i++ {
		onFrame(frame(100))
	}
	onFrame(frame(0))
	short := frame(100)
	short.Data = short.Data[:10]
	onFrame(short)

	st := h.session.Status()
	if st.SkippedFrames != 7 {
		t.Errorf("SkippedFrames = %d, want 7", st.SkippedFrames)
	}
	if got := h.display.count(); got != 0 {
		t.Errorf("display received %d rejected frames", got)
	}
}

func TestSession_RecordingRequestSurvivesRestart(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.session.SetRecordingActive(ctx, true); err != nil {
		t.Fatalf("SetRecordingActive() while idle = %v", err)
	}
	if err := h.session.Start(ctx, ""); err != nil {
		t.Fatal(err)
	}
	first := h.factory.last()
	if !first.branch.gateOpen() {
		t.Fatal("recording did not open on start")
	}
	if !h.session.Status().Recording {
		t.Error("Status().Recording = false")
	}

	const newURI = "rtsp://cam.local/other"
	if err := h.session.Restart(ctx, newURI); err != nil {
		t.Fatalf("Restart() error = %v", err)
	}
	if first.branch.gateOpen() || !first.branch.gens[0].finalized {
		t.Error("restart did not close and finalize the old recording")
	}
	second := h.factory.last()
	if second == first {
		t.Fatal("restart did not build a new graph")
	}
	if got := second.spec.Config.URI; got != newURI {
		t.Errorf("restarted URI = %q, want %q", got, newURI)
	}
	if !second.branch.gateOpen() {
		t.Error("recording did not reopen after restart")
	}
}

func TestSession_RecordingStartedMidMotionKeepsNormalRate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.session.Start(ctx, ""); err != nil {
		t.Fatal(err)
	}
	onFrame := h.factory.last().spec.OnFrame

	feedMotion(onFrame, 11)
	waitFor(t, "normal rate", func() bool { return h.session.shaper.Mode() == media.NormalRate })

	if err := h.session.SetRecordingActive(ctx, true); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			onFrame(frame(100))
		} else {
			onFrame(frame(200))
		}
	}

	if got := h.session.Status().Mode; got != media.NormalRate {
		t.Fatalf("detector mode = %v, want normal", got)
	}
	if got := h.session.shaper.Mode(); got != media.NormalRate {
		t.Errorf("shaper mode = %v while motion continues, want normal", got)
	}

	if err := h.session.Restart(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if got := h.session.shaper.Mode(); got != media.LowRate {
		t.Errorf("shaper mode after restart = %v, want low like the reset detector", got)
	}
}

func TestSession_ShaperFollowsLatestMotionMode(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	onFrame := h.factory.last().spec.OnFrame

	// motion confirmed, then a still scene long enough to fall back
	feedMotion(onFrame, 11)
	for i := 0; i < 41; i++ {
		onFrame(frame(100))
	}

	if got := h.session.Status().Mode; got != media.LowRate {
		t.Fatalf("detector mode = %v, want low", got)
	}
	waitFor(t, "shaper back in low rate", func() bool {
		return h.session.shaper.Mode() == media.LowRate
	})

	feedMotion(onFrame, 11)
	waitFor(t, "shaper in normal rate", func() bool {
		return h.session.shaper.Mode() == media.NormalRate
	})
}

func TestSession_RecordOnStart(t *testing.T) {
	h := newHarness(t, func(s *cameras.Settings) { s.RecordOnStart = true })
	if err := h.session.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if !h.factory.last().branch.gateOpen() {
		t.Error("record_on_start did not open the gate")
	}
}

func TestSession_StopClosesRecording(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.session.Start(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := h.session.SetRecordingActive(ctx, true); err != nil {
		t.Fatal(err)
	}
	branch := h.factory.last().branch

	if err := h.session.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if branch.gateOpen() {
		t.Error("gate still open after Stop")
	}
	if len(branch.gens) != 1 || !branch.gens[0].finalized {
		t.Error("generation not finalized on Stop")
	}
}

func TestSession_RuntimeErrorMovesToError(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.session.Start(ctx, ""); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var published []events.PipelineMessageEvent
	unsub := h.bus.Subscribe(func(e events.PipelineMessageEvent) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e)
	})
	defer unsub()

	graph := h.factory.last()
	graph.messages <- pipeline.Message{Kind: pipeline.MessageWarning, Text: "late packet"}
	graph.messages <- pipeline.ErrorMessage("rtspsrc0", "Could not connect to server", "timeout")

	waitFor(t, "error state", func() bool { return h.session.State() == StateError })

	tr := h.lastTransition()
	var rerr *RuntimeError
	if !errors.As(tr.err, &rerr) {
		t.Fatalf("transition error = %v, want *RuntimeError", tr.err)
	}
	if rerr.Category != pipeline.CategoryNetwork {
		t.Errorf("Category = %v, want network", rerr.Category)
	}
	if !graph.isStopped() {
		t.Error("failed graph was not stopped")
	}

	waitFor(t, "pipeline message events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 2
	})
	mu.Lock()
	if published[0].Level != "warning" || published[1].Level != "error" || published[1].Category != "network" {
		t.Errorf("published = %+v, want warning then network error", published)
	}
	mu.Unlock()

	if err := h.session.Start(ctx, ""); err != nil {
		t.Fatalf("Start() after error = %v", err)
	}
	if got := h.factory.count(); got != 2 {
		t.Errorf("graphs built = %d, want 2", got)
	}
}

func TestSession_EOSIsRuntimeError(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.session.Start(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	h.factory.last().messages <- pipeline.EOSMessage("cam0_pipeline")

	waitFor(t, "error state", func() bool { return h.session.State() == StateError })
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.session.State(); got != StateIdle {
		t.Errorf("State() = %q, want idle after Stop from error", got)
	}
}
