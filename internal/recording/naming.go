package recording

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// TimestampLayout is the time part of every recording file name.
const TimestampLayout = "2006-01-02_15-04-05"

// DefaultExtension is the container extension for recordings.
const DefaultExtension = "mkv"

// SanitizeName maps every rune that is not a letter, digit, '_' or '-' to '_'.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// FileName builds <sanitized-name>_<timestamp>.<ext>.
func FileName(camera string, at time.Time, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	return fmt.Sprintf("%s_%s.%s", SanitizeName(camera), at.Format(TimestampLayout), strings.TrimPrefix(ext, "."))
}

// Namer allocates output paths for one camera.
type Namer struct {
	Dir       string
	Camera    string
	Extension string
	Now       func() time.Time
}

// Next returns the path for a recording starting now.
func (n Namer) Next() (string, time.Time) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	at := now()
	return filepath.Join(n.Dir, FileName(n.Camera, at, n.Extension)), at
}
