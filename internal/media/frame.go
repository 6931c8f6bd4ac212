// Package media holds the value types shared by the pipeline stages.
package media

import "time"

// PixelFormat identifies the byte layout of a raw frame.
type PixelFormat string

// Supported pixel formats.
const (
	PixelFormatRGB PixelFormat = "RGB"
)

// BytesPerPixel returns the packed size of one pixel, or 0 if unknown.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGB:
		return 3
	default:
		return 0
	}
}

// Frame is one decoded image delivered on the live branch.
// Data is owned by the frame; producers copy out of mapped buffers.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Data      []byte
	PTS       time.Duration
	Corrupted bool
	Captured  time.Time
}

// ExpectedSize is the minimum byte length of a complete frame.
func (f Frame) ExpectedSize() int {
	return f.Width * f.Height * f.Format.BytesPerPixel()
}
