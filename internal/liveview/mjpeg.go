package liveview

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
)

// Boundary separates MJPEG parts.
const Boundary = "camrecdframe"

// ContentType is the response type of an MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// StreamMJPEG writes a JPEG part for every new frame of index until ctx
// ends or a write fails. flush, if set, runs after each part.
func (h *Hub) StreamMJPEG(ctx context.Context, index int, w io.Writer, flush func()) error {
	wake, cancel := h.Subscribe(index)
	defer cancel()

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(Boundary); err != nil {
		return err
	}

	// send what we have right away so clients render without waiting
	if _, ok := h.Latest(index); ok {
		if err := h.writePart(mw, index, flush); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = mw.Close()
			return nil
		case <-wake:
			if err := h.writePart(mw, index, flush); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) writePart(mw *multipart.Writer, index int, flush func()) error {
	img, err := h.Snapshot(index)
	if err != nil {
		h.logger.Debug("Skipping MJPEG part", "index", index, "error", err)
		return nil
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", "image/jpeg")
	header.Set("Content-Length", strconv.Itoa(len(img)))
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(img); err != nil {
		return fmt.Errorf("write part: %w", err)
	}
	if flush != nil {
		flush()
	}
	return nil
}
