package cameras

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// ErrNotFound is returned for an index with no camera.
var ErrNotFound = errors.New("camera not found")

// ErrInvalid wraps validation failures of settings passed to the store.
var ErrInvalid = errors.New("invalid camera settings")

// File is the on-disk layout of cameras.toml. A camera's index is its
// position in Cameras.
type File struct {
	Version int        `toml:"version" json:"version"`
	Cameras []Settings `toml:"cameras" json:"cameras"`
}

// Load reads, normalizes and validates a cameras file. A missing file
// yields no cameras. It is the loader handed to the config watcher.
func Load(path string) ([]Settings, error) {
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]Settings, len(f.Cameras))
	for i, raw := range f.Cameras {
		s := raw.Normalize(i)
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("camera %d (%s): %w", i, s.Name, err)
		}
		out[i] = s
	}
	return out, nil
}

func readFile(path string) (File, error) {
	f := File{Version: 1}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("failed to read cameras config: %w", err)
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse cameras config: %w", err)
	}
	if f.Version == 0 {
		f.Version = 1
	}
	return f, nil
}

// Store keeps cameras.toml in memory and writes changes back. Settings are
// stored as written by the user; readers get normalized copies.
type Store struct {
	path string

	mu   sync.RWMutex
	file File
}

// NewStore creates a store for path. Call Load before use.
func NewStore(path string) *Store {
	if path == "" {
		path = "cameras.toml"
	}
	return &Store{path: path, file: File{Version: 1}}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load replaces the in-memory state with the file contents.
func (s *Store) Load() error {
	f, err := readFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	return nil
}

// List returns every camera, normalized, in index order.
func (s *Store) List() []Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Settings, len(s.file.Cameras))
	for i, c := range s.file.Cameras {
		out[i] = c.Normalize(i)
	}
	return out
}

// Get returns one camera, normalized.
func (s *Store) Get(index int) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.file.Cameras) {
		return Settings{}, fmt.Errorf("camera %d: %w", index, ErrNotFound)
	}
	return s.file.Cameras[index].Normalize(index), nil
}

// Add appends a camera and returns its index.
func (s *Store) Add(settings Settings) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := len(s.file.Cameras)
	if err := settings.Normalize(index).Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	s.file.Cameras = append(s.file.Cameras, settings)
	if err := s.save(); err != nil {
		s.file.Cameras = s.file.Cameras[:index]
		return 0, err
	}
	return index, nil
}

// SetURI changes only the source URI of one camera.
func (s *Store) SetURI(index int, uri string) error {
	return s.mutate(index, func(cur *Settings) Settings {
		next := *cur
		next.URI = uri
		return next
	})
}

// SetEnabled changes only the enabled flag of one camera.
func (s *Store) SetEnabled(index int, enabled bool) error {
	return s.mutate(index, func(cur *Settings) Settings {
		next := *cur
		next.Enabled = &enabled
		return next
	})
}

func (s *Store) mutate(index int, fn func(*Settings) Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.file.Cameras) {
		return fmt.Errorf("camera %d: %w", index, ErrNotFound)
	}
	prev := s.file.Cameras[index]
	next := fn(&prev)
	if err := next.Normalize(index).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	s.file.Cameras[index] = next
	if err := s.save(); err != nil {
		s.file.Cameras[index] = prev
		return err
	}
	return nil
}

// save writes through a temp file and rename so the watcher never sees a
// half-written file. Must be called with mu held.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(s.file)
	if err != nil {
		return fmt.Errorf("failed to marshal cameras config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cameras-*.toml")
	if err != nil {
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cameras config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace cameras config: %w", err)
	}
	return nil
}
