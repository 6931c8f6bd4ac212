package pipeline

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name    string
		message string
		debug   string
		want    ErrorCategory
	}{
		{"auth beats network", "Unauthorized", "rtspsrc: 401 from server", CategoryAuth},
		{"codec", "Internal data stream error", "streaming stopped, reason not-negotiated (not negotiated)", CategoryCodec},
		{"network", "Could not open resource for reading and writing.", "Could not connect to server. (Timeout while waiting for server response)", CategoryNetwork},
		{"eos", "end of stream", "", CategoryNetwork},
		{"unknown", "Something odd", "", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.message, tt.debug); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("no such element factory")

	err := error(CreationError("nvh265enc", cause))
	if got, want := err.Error(), "create nvh265enc: no such element factory"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("CreationError does not unwrap to its cause")
	}

	var stage *StageError
	err = LinkError("queue", "valve", nil)
	if !errors.As(err, &stage) || stage.Kind != StageLink {
		t.Fatalf("errors.As failed for %v", err)
	}
	if got, want := err.Error(), "link queue -> valve"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestMessage_Fatal(t *testing.T) {
	if !ErrorMessage("src", "boom", "").Fatal() {
		t.Error("error message should be fatal")
	}
	eos := EOSMessage("pipeline0")
	if !eos.Fatal() || eos.Category != CategoryNetwork {
		t.Errorf("EOS message = %+v, want fatal network", eos)
	}
	if (Message{Kind: MessageWarning}).Fatal() {
		t.Error("warning should not be fatal")
	}
}
