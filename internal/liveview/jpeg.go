package liveview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/smazurov/camrecd/internal/media"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// EncodeJPEG converts a packed RGB frame to JPEG.
func EncodeJPEG(frame media.Frame, quality int) ([]byte, error) {
	if frame.Format != media.PixelFormatRGB {
		return nil, fmt.Errorf("unsupported pixel format %q", frame.Format)
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) < frame.ExpectedSize() {
		return nil, fmt.Errorf("incomplete %dx%d frame: %d bytes", frame.Width, frame.Height, len(frame.Data))
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	src, dst := frame.Data, img.Pix
	for i, j := 0, 0; i+2 < len(src) && j+3 < len(dst); i, j = i+3, j+4 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
		dst[j+3] = 0xff
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
