package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

// LecturersFile is the single, week-independent lecturer directory entry.
const LecturersFile = "lecturers.json"

// Coordinate identifies the events of one program/semester on one day.
type Coordinate struct {
	Program  string
	Semester int
	Week     int // ISO week
	Day      int // 0 = Monday
}

// FileName is the cache file holding the events of c.
func (c Coordinate) FileName() string {
	return fmt.Sprintf("events-%s%d-kw%d-%d.json", c.Program, c.Semester, c.Week, c.Day)
}

// StorageError wraps a cache read or write failure. It is never fatal:
// reads degrade to a miss and writes are skipped.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is a read-through cache of JSON files, one per coordinate.
//
// An empty sequence is never treated as a cached value: Put* skips it and
// the getters report a miss for it, so a transient empty or failed
// response cannot poison the cache. Nothing is expired here; day-scoped
// file names simply stop being requested once the day changes.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates a Store on fsys rooted at dir.
func New(fsys afero.Fs, dir string) *Store {
	if dir == "" {
		// Caller should set this explicitly; fall back to a relative dir
		// so that development runs work without extra setup.
		dir = "./var/timetable-cache"
	}
	return &Store{fs: fsys, dir: dir}
}

// NewOS creates a Store backed by the operating system filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

func (s *Store) Dir() string { return s.dir }

// Path returns the full path of a cache file name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Events returns the cached events for c.
func (s *Store) Events(c Coordinate) ([]model.Event, bool) {
	return load[model.Event](s, c.FileName())
}

// PutEvents stores events for c. Empty input is ignored.
func (s *Store) PutEvents(c Coordinate, events []model.Event) error {
	return save(s, c.FileName(), events)
}

// Lecturers returns the cached lecturer directory.
func (s *Store) Lecturers() ([]model.Lecturer, bool) {
	return load[model.Lecturer](s, LecturersFile)
}

// PutLecturers stores the lecturer directory. Empty input is ignored.
func (s *Store) PutLecturers(lecturers []model.Lecturer) error {
	return save(s, LecturersFile, lecturers)
}

// Clear removes the whole cache area. A missing area is not an error.
func (s *Store) Clear() (bool, error) {
	if _, err := s.fs.Stat(s.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &StorageError{Op: "stat", Path: s.dir, Err: err}
	}
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return false, &StorageError{Op: "clear", Path: s.dir, Err: err}
	}
	appLog.Info("cache cleared", "dir", s.dir)
	return true, nil
}

func load[T any](s *Store, name string) ([]T, bool) {
	path := s.Path(name)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Error("cache read failed; treating as miss", &StorageError{Op: "read", Path: path, Err: err})
		}
		return nil, false
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		appLog.Error("cache entry corrupt; treating as miss", &StorageError{Op: "decode", Path: path, Err: err})
		return nil, false
	}
	if len(out) == 0 {
		return nil, false
	}

	appLog.Debug("cache hit", "file", name, "count", len(out))
	return out, true
}

// save writes v atomically: temp file in the same directory, then rename.
func save[T any](s *Store, name string, v []T) error {
	if len(v) == 0 {
		return nil
	}
	path := s.Path(name)

	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return &StorageError{Op: "mkdir", Path: s.dir, Err: err}
	}

	tmp, err := afero.TempFile(s.fs, s.dir, ".timetable-*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer s.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := s.fs.Chmod(tmpName, 0o600); err != nil {
		return &StorageError{Op: "chmod", Path: path, Err: err}
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		return &StorageError{Op: "rename", Path: path, Err: err}
	}

	appLog.Debug("cache write", "file", name, "count", len(v))
	return nil
}
