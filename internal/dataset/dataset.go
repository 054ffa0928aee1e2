// Package dataset manages the directory of example valleys and uploaded
// series.
//
// Model files (.json) hold valley descriptions. Series files (.csv) hold
// one number per line and are never read as valleys.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hydrovalley/internal/codec"
)

var (
	ErrNotFound        = errors.New("dataset not found")
	ErrInvalidName     = errors.New("invalid dataset name")
	ErrUnsupportedType = errors.New("unsupported dataset type")
	ErrWrongKind       = errors.New("dataset has the wrong kind")
)

// maxUploadBytes bounds a single dataset file
const maxUploadBytes = 16 << 20

// Kind tells model files from raw series
type Kind string

const (
	KindModel  Kind = "model"
	KindSeries Kind = "series"
)

// KindOf returns the kind implied by a file name, or "" when unsupported
func KindOf(name string) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return KindModel
	case ".csv":
		return KindSeries
	}
	return ""
}

// Info describes one dataset file
type Info struct {
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store reads and writes datasets in one directory
type Store struct {
	dir         string
	defaultName string
	now         func() time.Time
}

// New creates a store over dir. defaultName is loaded when a session is
// opened without naming a dataset.
func New(dir, defaultName string) *Store {
	return &Store{dir: dir, defaultName: defaultName, now: time.Now}
}

// Dir returns the dataset directory
func (s *Store) Dir() string {
	return s.dir
}

// DefaultName returns the default dataset name
func (s *Store) DefaultName() string {
	return s.defaultName
}

// ValidateName accepts plain base names with a supported extension
func ValidateName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if KindOf(name) == "" {
		return fmt.Errorf("%w: %q (expected .json or .csv)", ErrUnsupportedType, name)
	}
	return nil
}

// List returns the supported files, sorted by name. A missing directory
// is an empty list.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:    e.Name(),
			Kind:    KindOf(e.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Read returns the raw content of a dataset
func (s *Store) Read(name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", name, err)
	}
	return data, nil
}

// LoadModelText returns the text of a model dataset. An empty name loads
// the default dataset.
func (s *Store) LoadModelText(name string) (string, error) {
	if name == "" {
		name = s.defaultName
	}
	if KindOf(name) != KindModel {
		return "", fmt.Errorf("%w: %s is not a model file", ErrWrongKind, name)
	}
	data, err := s.Read(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadSeries returns the values of a series dataset
func (s *Store) LoadSeries(name string) ([]float64, error) {
	if KindOf(name) != KindSeries {
		return nil, fmt.Errorf("%w: %s is not a series file", ErrWrongKind, name)
	}
	data, err := s.Read(name)
	if err != nil {
		return nil, err
	}
	return codec.ParseSeriesCSV(bytes.NewReader(data))
}

// Save validates and writes an uploaded file. Model files must parse as a
// valley; series files must hold one number per line.
func (s *Store) Save(name string, r io.Reader) (Info, error) {
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return Info{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return Info{}, fmt.Errorf("upload %s exceeds %d bytes", name, maxUploadBytes)
	}

	switch KindOf(name) {
	case KindModel:
		if _, err := codec.ParseValley(string(data)); err != nil {
			return Info{}, err
		}
	case KindSeries:
		if _, err := codec.ParseSeriesCSV(bytes.NewReader(data)); err != nil {
			return Info{}, fmt.Errorf("invalid series %s: %w", name, err)
		}
	}
	return s.write(name, data)
}

// SaveDirect stores text typed by the user as direct_input_<unix>.json
func (s *Store) SaveDirect(text string) (Info, error) {
	if _, err := codec.ParseValley(text); err != nil {
		return Info{}, err
	}
	name := fmt.Sprintf("direct_input_%d.json", s.now().Unix())
	return s.write(name, []byte(text))
}

// write replaces name atomically
func (s *Store) write(name string, data []byte) (Info, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Info{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Info{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("failed to write %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, fmt.Errorf("failed to store %s: %w", name, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return Info{Name: name, Kind: KindOf(name), Size: fi.Size(), ModTime: fi.ModTime()}, nil
}
