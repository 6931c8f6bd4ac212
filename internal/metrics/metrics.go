// Package metrics provides Prometheus metrics for camera sessions,
// fed from the event bus.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "camrecd"

var cameraLabels = []string{"index", "camera"}

var (
	sessionUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "ingesting",
		Help:      "1 while the session is ingesting, 0 otherwise",
	}, cameraLabels)

	sessionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "errors_total",
		Help:      "Runtime errors that moved a session to the error state",
	}, append(cameraLabels, "category"))

	motionMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "normal_rate",
		Help:      "1 while motion keeps the recording at the normal rate",
	}, cameraLabels)

	motionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "motion",
		Name:      "transitions_total",
		Help:      "Confirmed motion mode changes",
	}, append(cameraLabels, "mode"))

	recordingsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "active",
		Help:      "1 while a recording file is open",
	}, cameraLabels)

	recordingsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "finished_total",
		Help:      "Finished recordings by outcome (kept or discarded)",
	}, append(cameraLabels, "outcome"))

	recordingBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "bytes_total",
		Help:      "Bytes written to kept recordings",
	}, cameraLabels)

	recordingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "duration_seconds",
		Help:      "Wall-clock length of kept recordings",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, cameraLabels)

	pipelineMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "messages_total",
		Help:      "Warnings and errors reported by the media graph",
	}, append(cameraLabels, "level"))

	liveFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "live",
		Help:      "Frames delivered on the live branch since the session started",
	}, cameraLabels)

	skippedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "skipped",
		Help:      "Frames rejected by the sanity filter since the session started",
	}, cameraLabels)

	recordBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "frames",
		Name:      "recording_buffers",
		Help:      "Recording buffers seen by the rate shaper, by decision",
	}, append(cameraLabels, "decision"))

	// Local cache for API access.
	cache   = make(map[int]*CameraMetrics)
	cacheMu sync.RWMutex
)

// CameraMetrics holds current values for one camera.
type CameraMetrics struct {
	Camera            string
	Ingesting         bool
	NormalRate        bool
	Recording         bool
	RecordingsKept    uint64
	RecordingsDropped uint64
	BytesWritten      int64
	LiveFrames        uint64
	SkippedFrames     uint64
	KeptBuffers       uint64
	DroppedBuffers    uint64
	MotionTransitions uint64
	PipelineErrors    uint64
	PipelineWarnings  uint64
}

func labels(index int, camera string) []string {
	return []string{strconv.Itoa(index), camera}
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// SetIngesting records whether a session is ingesting.
func SetIngesting(index int, camera string, ingesting bool) {
	sessionUp.WithLabelValues(labels(index, camera)...).Set(boolValue(ingesting))
	update(index, camera, func(m *CameraMetrics) { m.Ingesting = ingesting })
}

// ObserveSessionError counts a runtime error.
func ObserveSessionError(index int, camera, category string) {
	sessionErrors.WithLabelValues(append(labels(index, camera), category)...).Inc()
}

// SetMotionMode records a confirmed mode change.
func SetMotionMode(index int, camera string, normal bool) {
	mode := "low"
	if normal {
		mode = "normal"
	}
	motionMode.WithLabelValues(labels(index, camera)...).Set(boolValue(normal))
	motionTransitions.WithLabelValues(append(labels(index, camera), mode)...).Inc()
	update(index, camera, func(m *CameraMetrics) {
		m.NormalRate = normal
		m.MotionTransitions++
	})
}

// RecordingStarted marks a recording as open.
func RecordingStarted(index int, camera string) {
	recordingsActive.WithLabelValues(labels(index, camera)...).Set(1)
	update(index, camera, func(m *CameraMetrics) { m.Recording = true })
}

// RecordingFinished marks a recording as closed and accounts its file.
func RecordingFinished(index int, camera string, bytes int64, seconds float64, discarded bool) {
	l := labels(index, camera)
	recordingsActive.WithLabelValues(l...).Set(0)
	if discarded {
		recordingsFinished.WithLabelValues(append(l, "discarded")...).Inc()
	} else {
		recordingsFinished.WithLabelValues(append(l, "kept")...).Inc()
		recordingBytes.WithLabelValues(l...).Add(float64(bytes))
		recordingSeconds.WithLabelValues(l...).Observe(seconds)
	}
	update(index, camera, func(m *CameraMetrics) {
		m.Recording = false
		if discarded {
			m.RecordingsDropped++
			return
		}
		m.RecordingsKept++
		m.BytesWritten += bytes
	})
}

// ObservePipelineMessage counts a graph warning or error.
func ObservePipelineMessage(index int, camera, level string) {
	pipelineMessages.WithLabelValues(append(labels(index, camera), level)...).Inc()
	update(index, camera, func(m *CameraMetrics) {
		if level == "warning" {
			m.PipelineWarnings++
		} else {
			m.PipelineErrors++
		}
	})
}

// SetFrameStats stores the latest frame counters of a session.
func SetFrameStats(index int, camera string, live, skipped, kept, dropped uint64) {
	l := labels(index, camera)
	liveFrames.WithLabelValues(l...).Set(float64(live))
	skippedFrames.WithLabelValues(l...).Set(float64(skipped))
	recordBuffers.WithLabelValues(append(l, "kept")...).Set(float64(kept))
	recordBuffers.WithLabelValues(append(l, "dropped")...).Set(float64(dropped))
	update(index, camera, func(m *CameraMetrics) {
		m.LiveFrames = live
		m.SkippedFrames = skipped
		m.KeptBuffers = kept
		m.DroppedBuffers = dropped
	})
}

// DeleteCamera removes every series of a camera.
func DeleteCamera(index int, camera string) {
	match := prometheus.Labels{"index": strconv.Itoa(index), "camera": camera}
	sessionUp.DeletePartialMatch(match)
	sessionErrors.DeletePartialMatch(match)
	motionMode.DeletePartialMatch(match)
	motionTransitions.DeletePartialMatch(match)
	recordingsActive.DeletePartialMatch(match)
	recordingsFinished.DeletePartialMatch(match)
	recordingBytes.DeletePartialMatch(match)
	recordingSeconds.DeletePartialMatch(match)
	pipelineMessages.DeletePartialMatch(match)
	liveFrames.DeletePartialMatch(match)
	skippedFrames.DeletePartialMatch(match)
	recordBuffers.DeletePartialMatch(match)

	cacheMu.Lock()
	delete(cache, index)
	cacheMu.Unlock()
}

// GetCameraMetrics returns current values for a camera.
func GetCameraMetrics(index int) *CameraMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if m, ok := cache[index]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllCameraMetrics returns current values for every camera.
func GetAllCameraMetrics() map[int]*CameraMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	result := make(map[int]*CameraMetrics, len(cache))
	for index, m := range cache {
		dup := *m
		result[index] = &dup
	}
	return result
}

func update(index int, camera string, fn func(*CameraMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	m, ok := cache[index]
	if !ok {
		m = &CameraMetrics{}
		cache[index] = m
	}
	m.Camera = camera
	fn(m)
}
