package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan RecordingStartedEvent, 1)

	unsub := bus.Subscribe(func(e RecordingStartedEvent) {
		received <- e
	})
	defer unsub()

	ev := RecordingStartedEvent{
		Index:       2,
		Camera:      "Driveway",
		RecordingID: "rec-1",
		Path:        "/tmp/Driveway_2025-01-27_10-30-00.mkv",
		Generation:  4,
	}
	bus.Publish(ev)

	got := <-received
	if got.Path != ev.Path || got.Generation != ev.Generation {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan MotionModeChangedEvent, 1)
	received2 := make(chan MotionModeChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e MotionModeChangedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e MotionModeChangedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(MotionModeChangedEvent{Index: 0, Mode: "normal"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan PipelineMessageEvent, 1)

	unsub := bus.Subscribe(func(e PipelineMessageEvent) { received <- e })

	bus.Publish(PipelineMessageEvent{Level: "warning"})
	<-received

	unsub()

	bus.Publish(PipelineMessageEvent{Level: "error"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	startedReceived := make(chan bool, 1)
	finishedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ RecordingStartedEvent) { startedReceived <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(_ RecordingFinishedEvent) { finishedReceived <- true })
	defer unsub2()

	bus.Publish(RecordingStartedEvent{Index: 1})
	<-startedReceived

	select {
	case <-finishedReceived:
		t.Fatal("Finished subscriber should NOT have received RecordingStartedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(RecordingFinishedEvent{Index: 1})
	<-finishedReceived

	select {
	case <-startedReceived:
		t.Fatal("Started subscriber should NOT have received RecordingFinishedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ FrameStatsEvent) { receivedCh <- true })
	defer unsub()

	for i := range numGoroutines {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(FrameStatsEvent{Index: index, Timestamp: time.Now().Format(time.RFC3339)})
			}
		}(i)
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"StreamStateChanged", StreamStateChangedEvent{State: "ingesting"}},
		{"MotionModeChanged", MotionModeChangedEvent{Mode: "low"}},
		{"RecordingStarted", RecordingStartedEvent{RecordingID: "a"}},
		{"RecordingFinished", RecordingFinishedEvent{RecordingID: "a"}},
		{"PipelineMessage", PipelineMessageEvent{Level: "warning"}},
		{"LiveViewToggled", LiveViewToggledEvent{Enabled: true}},
		{"FrameStats", FrameStatsEvent{LiveFrames: 1}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case StreamStateChangedEvent:
				unsub = bus.Subscribe(func(e StreamStateChangedEvent) { received <- e })
			case MotionModeChangedEvent:
				unsub = bus.Subscribe(func(e MotionModeChangedEvent) { received <- e })
			case RecordingStartedEvent:
				unsub = bus.Subscribe(func(e RecordingStartedEvent) { received <- e })
			case RecordingFinishedEvent:
				unsub = bus.Subscribe(func(e RecordingFinishedEvent) { received <- e })
			case PipelineMessageEvent:
				unsub = bus.Subscribe(func(e PipelineMessageEvent) { received <- e })
			case LiveViewToggledEvent:
				unsub = bus.Subscribe(func(e LiveViewToggledEvent) { received <- e })
			case FrameStatsEvent:
				unsub = bus.Subscribe(func(e FrameStatsEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a no-op unsubscribe for unknown handler types")
	}
	unsub()
}

func TestEventJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(RecordingFinishedEvent{
		Index:       1,
		RecordingID: "abc",
		Bytes:       4096,
		Discarded:   true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	for _, key := range []string{"index", "recording_id", "bytes", "discarded"} {
		if _, ok := result[key]; !ok {
			t.Errorf("missing JSON field %q in %s", key, data)
		}
	}
}

func TestMotionModeChangedEvent_Motion(t *testing.T) {
	if !(MotionModeChangedEvent{Mode: "normal"}).Motion() {
		t.Error("normal mode should report motion")
	}
	if (MotionModeChangedEvent{Mode: "low"}).Motion() {
		t.Error("low mode should not report motion")
	}
}

func TestFeed(t *testing.T) {
	bus := New()
	feed := NewFeed(bus, 10)
	Follow[StreamStateChangedEvent](feed)
	Follow[LiveViewToggledEvent](feed)
	defer feed.Close()

	bus.Publish(StreamStateChangedEvent{Index: 3, State: "error"})
	bus.Publish(LiveViewToggledEvent{Index: 3, Enabled: true})

	var gotState, gotToggle bool
	for range 2 {
		select {
		case received := <-feed.C:
			switch ev := received.(type) {
			case StreamStateChangedEvent:
				gotState = ev.Index == 3 && ev.State == "error"
			case LiveViewToggledEvent:
				gotToggle = ev.Enabled
			default:
				t.Fatalf("unexpected event %T", received)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for feed")
		}
	}
	if !gotState || !gotToggle {
		t.Errorf("state=%v toggle=%v, want both", gotState, gotToggle)
	}
}

func TestFeedDropsWhenFull(t *testing.T) {
	bus := New()
	feed := Follow[LiveViewToggledEvent](NewFeed(bus, 0))
	defer feed.Close()

	bus.Publish(LiveViewToggledEvent{Enabled: false})

	deadline := time.Now().Add(time.Second)
	for feed.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected the event to be dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedClose(t *testing.T) {
	bus := New()
	feed := Follow[LiveViewToggledEvent](NewFeed(bus, 1))
	feed.Close()
	Follow[StreamStateChangedEvent](feed)

	bus.Publish(LiveViewToggledEvent{Enabled: true})
	time.Sleep(20 * time.Millisecond)

	if len(feed.C) != 0 {
		t.Error("closed feed should not receive events")
	}
}
