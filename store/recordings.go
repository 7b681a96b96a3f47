package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hazyhaar/pagetape/session"
)

// Recordings stores one JSON file per recording session under a directory,
// named <session_id>.json. Session ids are time-prefixed, so lexicographic
// listing order is also chronological.
type Recordings struct {
	dir string
}

// NewRecordings returns a store rooted at dir. The directory is created on
// first persist.
func NewRecordings(dir string) *Recordings {
	return &Recordings{dir: dir}
}

// Path returns the file path a session id maps to.
func (s *Recordings) Path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Persist writes the full recording atomically, keyed by its session id.
// Persisting an existing id overwrites the previous record.
func (s *Recordings) Persist(rec *session.Recording) error {
	if rec.SessionID == "" {
		return fmt.Errorf("store: persist recording: empty session id")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", s.dir, err)
	}
	data, err := session.MarshalRecording(rec)
	if err != nil {
		return fmt.Errorf("store: marshal recording %s: %w", rec.SessionID, err)
	}
	if err := writeFileAtomic(s.Path(rec.SessionID), data); err != nil {
		return fmt.Errorf("store: persist recording %s: %w", rec.SessionID, err)
	}
	return nil
}

// Load reads a recording by session id. Returns ErrNotFound if no such
// session has been persisted.
func (s *Recordings) Load(sessionID string) (*session.Recording, error) {
	data, err := os.ReadFile(s.Path(sessionID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("store: recording %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read recording %s: %w", sessionID, err)
	}
	rec, err := session.UnmarshalRecording(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode recording %s: %w", sessionID, err)
	}
	return rec, nil
}

// List returns the known session ids in lexicographic (chronological)
// order. A missing directory is an empty store, not an error.
func (s *Recordings) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list recordings: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
