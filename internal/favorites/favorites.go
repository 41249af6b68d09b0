// Package favorites persists the user's favorite voices.
package favorites

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	gap "github.com/muesli/go-app-paths"
	"gopkg.in/yaml.v3"
)

const fileName = "favorites.yml"

type file struct {
	Voices []string `yaml:"voices"`
}

// Store is a list of favorite voice keys backed by a YAML file. Every change
// is written through.
type Store struct {
	path string

	mu     sync.Mutex
	voices []string
}

// DefaultPath returns the favorites file in the user data directory.
func DefaultPath() (string, error) {
	scope := gap.NewScope(gap.User, "readalong")
	path, err := scope.DataPath(fileName)
	if err != nil {
		return "", fmt.Errorf("unable to find data directory: %w", err)
	}
	return path, nil
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("favorites: open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var data file
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("favorites: decode %q: %w", path, err)
	}
	for _, v := range data.Voices {
		if v != "" && !slices.Contains(s.voices, v) {
			s.voices = append(s.voices, v)
		}
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// List returns the favorites in the order they were added.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.voices)
}

// Has reports whether key is a favorite.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.voices, key)
}

// Add marks key as a favorite.
func (s *Store) Add(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.voices, key) {
		return nil
	}
	s.voices = append(s.voices, key)
	return s.saveLocked()
}

// Remove unmarks key.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.voices, key)
	if i < 0 {
		return nil
	}
	s.voices = slices.Delete(s.voices, i, i+1)
	return s.saveLocked()
}

// Toggle flips key and reports whether it is now a favorite.
func (s *Store) Toggle(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.voices, key); i >= 0 {
		s.voices = slices.Delete(s.voices, i, i+1)
		return false, s.saveLocked()
	}
	s.voices = append(s.voices, key)
	return true, s.saveLocked()
}

// saveLocked writes the file atomically through a temporary file.
func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("favorites: create directory: %w", err)
	}

	out, err := yaml.Marshal(file{Voices: s.voices})
	if err != nil {
		return fmt.Errorf("favorites: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".favorites-*.yml")
	if err != nil {
		return fmt.Errorf("favorites: create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("favorites: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("favorites: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("favorites: replace %q: %w", s.path, err)
	}
	return nil
}
