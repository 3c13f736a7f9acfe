package region

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"camtrap/internal/services"
)

// Coordinates is the persisted region center. Nil values mean the frame center.
type Coordinates struct {
	X *int `yaml:"x"`
	Y *int `yaml:"y"`
}

// File is the on-disk layout of the region file.
type File struct {
	Coordinates Coordinates `yaml:"coordinates"`
	Side        *int        `yaml:"side,omitempty"`
}

// Resolve turns persisted values into a region for a frame, filling gaps
// from the frame center and the configured side length.
func (f File) Resolve(frame image.Point, side int) Region {
	r := Centered(frame, side)
	if f.Coordinates.X != nil {
		r.CenterX = *f.Coordinates.X
	}
	if f.Coordinates.Y != nil {
		r.CenterY = *f.Coordinates.Y
	}
	if f.Side != nil && *f.Side > 0 {
		r.Side = *f.Side
	}
	return r
}

// Store reads and writes the region file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the region file. A missing file yields an empty File and false.
// A malformed file is a configuration error.
func (s *Store) Load() (File, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, false, nil
		}
		return File{}, false, services.Wrap(services.ErrConfiguration, "region", "load", s.path, err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, false, services.Wrap(services.ErrConfiguration, "region", "parse", s.path, err)
	}
	return file, true, nil
}

// Save persists r, replacing the file atomically.
func (s *Store) Save(r Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	x, y, side := r.CenterX, r.CenterY, r.Side
	data, err := yaml.Marshal(File{Coordinates: Coordinates{X: &x, Y: &y}, Side: &side})
	if err != nil {
		return fmt.Errorf("encode region: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create region directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".region-*.yaml")
	if err != nil {
		return fmt.Errorf("create region temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write region file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close region file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace region file: %w", err)
	}
	return nil
}
