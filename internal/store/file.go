package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"timeclock/internal/attendance"
	"timeclock/internal/metrics"
)

// fileState is the on-disk document.
type fileState struct {
	Users       []attendance.User       `json:"users"`
	TimeRecords []attendance.TimeRecord `json:"timeRecords"`
}

// FileStore keeps users and records in a single JSON document. Every write
// rewrites the whole file and invalidates the in-memory copy; the next read
// reloads it. The cache is also dropped when the file changes on disk, so a
// second process reading the same file sees the other's appends. The mutex
// only protects the cache inside this process; two processes writing the
// same file can still lose updates.
type FileStore struct {
	path   string
	mu     sync.Mutex
	cache  *fileState
	loaded os.FileInfo
	rename func(oldpath, newpath string) error
}

// NewFileStore opens path, creating an empty document when it does not exist.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	s := &FileStore{path: path, rename: os.Rename}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(&fileState{}); err != nil {
			return nil, fmt.Errorf("init %s: %w", path, err)
		}
	} else if err != nil {
		return nil, err
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Users(ctx context.Context) ([]attendance.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]attendance.User, len(st.Users))
	copy(out, st.Users)
	return out, nil
}

func (s *FileStore) UserByID(ctx context.Context, id string) (*attendance.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, u := range st.Users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}

// PutUser inserts or replaces a user. Unlike AppendRecord a failed write is
// reported to the caller.
func (s *FileStore) PutUser(ctx context.Context, u attendance.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	next := &fileState{
		Users:       make([]attendance.User, 0, len(st.Users)+1),
		TimeRecords: st.TimeRecords,
	}
	replaced := false
	for _, existing := range st.Users {
		if existing.ID == u.ID {
			existing = u
			replaced = true
		}
		next.Users = append(next.Users, existing)
	}
	if !replaced {
		next.Users = append(next.Users, u)
	}
	return s.write(next)
}

func (s *FileStore) Records(ctx context.Context) ([]attendance.TimeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]attendance.TimeRecord, len(st.TimeRecords))
	copy(out, st.TimeRecords)
	return out, nil
}

// AppendRecord adds rec to the end of the log. When the file cannot be
// written the failure is logged and counted and the record is dropped.
func (s *FileStore) AppendRecord(ctx context.Context, rec attendance.TimeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	next := &fileState{
		Users:       st.Users,
		TimeRecords: make([]attendance.TimeRecord, 0, len(st.TimeRecords)+1),
	}
	next.TimeRecords = append(next.TimeRecords, st.TimeRecords...)
	next.TimeRecords = append(next.TimeRecords, rec)
	if err := s.write(next); err != nil {
		metrics.StoreWriteFailures.Inc()
		log.Printf("file store: dropping record %s for %s: %v", rec.ID, rec.UserID, err)
	}
	return nil
}

// Ping checks that the backing file is readable.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(s.path)
	return err
}

func (s *FileStore) Close() error { return nil }

// load returns the cached document, reading the file on a cache miss or
// when the file was replaced since it was cached. Callers hold s.mu.
func (s *FileStore) load() (*fileState, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if s.cache != nil && s.unchanged(info) {
		return s.cache, nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	st := &fileState{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, st); err != nil {
			return nil, fmt.Errorf("decode %s: %w", s.path, err)
		}
	}
	s.cache = st
	s.loaded = info
	return st, nil
}

// unchanged reports whether info describes the file the cache was read from.
// Writes go through rename, so another writer always yields a new file.
func (s *FileStore) unchanged(info os.FileInfo) bool {
	return s.loaded != nil &&
		os.SameFile(s.loaded, info) &&
		s.loaded.Size() == info.Size() &&
		s.loaded.ModTime().Equal(info.ModTime())
}

// write replaces the file with st and invalidates the cache. Callers hold s.mu.
func (s *FileStore) write(st *fileState) error {
	s.cache = nil
	s.loaded = nil

	users := make([]attendance.User, len(st.Users))
	for i, u := range st.Users {
		u.IsClockedIn = false
		u.LastClockIn = nil
		users[i] = u
	}
	doc := fileState{Users: users, TimeRecords: st.TimeRecords}
	if doc.TimeRecords == nil {
		doc.TimeRecords = []attendance.TimeRecord{}
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := s.rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
