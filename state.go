package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Fingerprint records what was last successfully indexed for a file. Only
// the content hash decides whether a file changed; mtime is kept for
// reporting.
type Fingerprint struct {
	Hash  string `json:"hash"`
	Mtime int64  `json:"mtime"`
}

// StateStore persists fingerprints to a JSON file rewritten on every
// mutation. A missing or corrupt file starts empty, which just means the
// next scan re-indexes everything.
type StateStore struct {
	log  *slog.Logger
	path string

	mu   sync.Mutex
	docs map[string]Fingerprint
}

func NewStateStore(path string, log *slog.Logger) *StateStore {
	s := &StateStore{
		log:  log,
		path: path,
		docs: make(map[string]Fingerprint),
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read state file, starting empty", "path", path, "error", err)
		}
		return s
	}

	err = json.Unmarshal(buf, &s.docs)
	if err != nil {
		log.Warn("state file is corrupt, starting empty", "path", path, "error", err)
		s.docs = make(map[string]Fingerprint)
	}

	return s
}

func (s *StateStore) Get(path string) (Fingerprint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.docs[path]
	return fp, ok
}

func (s *StateStore) Put(path string, fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[path] = fp
	return s.save()
}

func (s *StateStore) Remove(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs, path)
	return s.save()
}

func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = make(map[string]Fingerprint)
	return s.save()
}

func (s *StateStore) Snapshot() map[string]Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make(map[string]Fingerprint, len(s.docs))
	for path, fp := range s.docs {
		docs[path] = fp
	}

	return docs
}

func (s *StateStore) save() error {
	err := os.MkdirAll(filepath.Dir(s.path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	buf, err := json.MarshalIndent(s.docs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a truncated file
	// behind.
	tmp := s.path + ".tmp"
	err = os.WriteFile(tmp, buf, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	err = os.Rename(tmp, s.path)
	if err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}
