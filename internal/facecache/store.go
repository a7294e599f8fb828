// Package facecache persists extracted face records keyed by image path.
//
// The whole mapping is stored as a single zstd-compressed gob blob. Saves
// go through a temp file in the same directory that is atomically renamed
// over the target, so a crash never leaves a half-written cache behind.
// The store assumes a single writer process.
package facecache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"

	"github.com/kozaktomas/face-finder/internal/face"
)

// Extension is appended to store paths that don't already carry it.
const Extension = ".facedb"

// snapshot is the on-disk payload.
type snapshot struct {
	Records map[string]face.Record
}

// Store is an in-memory map of image key to face record bound to a file.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]face.Record

	// fileMu serializes Save and Load so they never interleave.
	fileMu sync.Mutex
}

// Open binds a store to path.
//
// An existing file at path is loaded as-is and a directory is rejected
// with ErrInvalidArgument. Otherwise the containing
// directory must exist, the canonical extension is appended when missing,
// and a store file already present at that normalized path is loaded.
// If there is none the store starts empty.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty store path", face.ErrInvalidArgument)
	}
	path = filepath.Clean(path)

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return nil, fmt.Errorf("%w: store path %s is a directory", face.ErrInvalidArgument, path)
	} else if err == nil && fi.Mode().IsRegular() {
		s := newStore(path)
		if err := s.Load(); err != nil {
			return nil, err
		}
		return s, nil
	}

	dir := filepath.Dir(path)
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", face.ErrStorageUnavailable, dir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", face.ErrStorageUnavailable, dir)
	}

	s := newStore(NormalizePath(path))
	if fi, err := os.Stat(s.path); err == nil && fi.Mode().IsRegular() {
		if err := s.Load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NormalizePath appends Extension to path unless it already ends with it.
func NormalizePath(path string) string {
	if strings.EqualFold(filepath.Ext(path), Extension) {
		return path
	}
	return path + Extension
}

func newStore(path string) *Store {
	return &Store{
		path:    path,
		records: make(map[string]face.Record),
	}
}

// Path returns the file the store is bound to.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Put inserts or replaces the record for key. The record is copied.
func (s *Store) Put(key string, rec face.Record) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", face.ErrInvalidArgument)
	}
	rec = rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

// Get returns a copy of the record stored under key.
func (s *Store) Get(key string) (face.Record, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return face.Record{}, fmt.Errorf("%w: %q", face.ErrNotFound, key)
	}
	return rec.Clone(), nil
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok
}

// Remove deletes key from the store.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("%w: %q", face.ErrNotFound, key)
	}
	delete(s.records, key)
	return nil
}

// Keys returns the keys present at call time in lexicographic order.
// The sequence can be ranged over any number of times.
func (s *Store) Keys() iter.Seq[string] {
	s.mu.RLock()
	keys := slices.Sorted(maps.Keys(s.records))
	s.mu.RUnlock()
	return slices.Values(keys)
}

// All yields key/record pairs present at call time in key order.
func (s *Store) All() iter.Seq2[string, face.Record] {
	s.mu.RLock()
	snap := maps.Clone(s.records)
	s.mu.RUnlock()
	keys := slices.Sorted(maps.Keys(snap))

	return func(yield func(string, face.Record) bool) {
		for _, k := range keys {
			if !yield(k, snap[k].Clone()) {
				return
			}
		}
	}
}

// Save writes the whole mapping to the bound path.
// On failure the previous file and the in-memory state are untouched.
func (s *Store) Save() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	s.mu.RLock()
	snap := snapshot{Records: maps.Clone(s.records)}
	s.mu.RUnlock()

	pf, err := renameio.TempFile(filepath.Dir(s.path), s.path)
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", face.ErrPersistence, err)
	}
	defer pf.Cleanup()

	if err := pf.Chmod(0o644); err != nil {
		return fmt.Errorf("%w: chmod: %w", face.ErrPersistence, err)
	}
	if err := encode(pf, &snap); err != nil {
		return fmt.Errorf("%w: %w", face.ErrPersistence, err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("%w: replacing %s: %w", face.ErrPersistence, s.path, err)
	}
	return nil
}

// Load replaces the in-memory mapping with the file contents.
// The mapping is only swapped after the whole file decoded successfully.
func (s *Store) Load() error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	records, err := readFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

func encode(w io.Writer, snap *snapshot) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("encoding records: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing zstd stream: %w", err)
	}
	return nil
}

func readFile(path string) (map[string]face.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", face.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", face.ErrStorageUnavailable, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", face.ErrCorruptData, path, err)
	}
	defer zr.Close()

	var snap snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", face.ErrCorruptData, path, err)
	}
	if snap.Records == nil {
		snap.Records = make(map[string]face.Record)
	}
	return snap.Records, nil
}
