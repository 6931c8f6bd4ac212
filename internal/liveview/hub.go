// Package liveview keeps the latest live frame of every camera and serves
// it as JPEG snapshots or an MJPEG stream.
package liveview

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/smazurov/camrecd/internal/media"
)

// ErrNoFrame is returned when a camera has not delivered a frame yet.
var ErrNoFrame = errors.New("no frame available")

// Hub is the display sink for all sessions. Show is called from
// streaming threads; readers never block it.
type Hub struct {
	mu      sync.RWMutex
	latest  map[int]media.Frame
	subs    map[int]map[uint64]chan struct{}
	nextSub uint64
	quality int
	logger  *slog.Logger
}

// NewHub creates a hub encoding JPEGs at quality (1-100, 0 for default).
func NewHub(quality int, logger *slog.Logger) *Hub {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		latest:  make(map[int]media.Frame),
		subs:    make(map[int]map[uint64]chan struct{}),
		quality: quality,
		logger:  logger,
	}
}

// Show stores frame as the camera's latest and wakes its subscribers.
func (h *Hub) Show(index int, frame media.Frame) {
	h.mu.Lock()
	h.latest[index] = frame
	for _, ch := range h.subs[index] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

// Latest returns the most recent frame of a camera.
func (h *Hub) Latest(index int) (media.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	frame, ok := h.latest[index]
	return frame, ok
}

// Clear forgets a camera's frame, e.g. after its session stopped.
func (h *Hub) Clear(index int) {
	h.mu.Lock()
	delete(h.latest, index)
	h.mu.Unlock()
}

// Subscribe returns a channel signalled on each new frame of index. The
// signal coalesces: a slow reader sees at most one pending wake-up.
func (h *Hub) Subscribe(index int) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSub++
	id := h.nextSub
	ch := make(chan struct{}, 1)
	if h.subs[index] == nil {
		h.subs[index] = make(map[uint64]chan struct{})
	}
	h.subs[index][id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[index], id)
		if len(h.subs[index]) == 0 {
			delete(h.subs, index)
		}
	}
}

// Subscribers counts open subscriptions for a camera.
func (h *Hub) Subscribers(index int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[index])
}

// Snapshot encodes the latest frame of index as JPEG.
func (h *Hub) Snapshot(index int) ([]byte, error) {
	frame, ok := h.Latest(index)
	if !ok {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(frame, h.quality)
}
