package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	SetIngesting(42, "http-test", true)
	RecordingFinished(42, "http-test", 8192, 12, false)
	defer DeleteCamera(42, "http-test")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		`camrecd_session_ingesting{camera="http-test",index="42"} 1`,
		`camrecd_recording_bytes_total{camera="http-test",index="42"} 8192`,
		`camrecd_recording_duration_seconds_count{camera="http-test",index="42"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response missing %s", want)
		}
	}
}
