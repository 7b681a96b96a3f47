package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/pagetape/session"
)

// Snapshots stores stage snapshots under <dir>/<session_id>/stage_<N>.json
// plus a per-session metadata.json enumerating the captured stage indices.
// Writing a stage that already exists overwrites it (last-write-wins).
type Snapshots struct {
	dir string
}

// NewSnapshots returns a store rooted at dir.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{dir: dir}
}

func (s *Snapshots) sessionDir(sessionID string) string {
	return filepath.Join(s.dir, sessionID)
}

func (s *Snapshots) stagePath(sessionID string, stage int) string {
	return filepath.Join(s.sessionDir(sessionID), fmt.Sprintf("stage_%d.json", stage))
}

// Put persists a snapshot for its stage index and rewrites the session's
// metadata index. Both writes are atomic; the metadata is rebuilt from the
// directory contents so it never disagrees with the stage files.
func (s *Snapshots) Put(sessionID string, snap *session.Snapshot) error {
	if snap.Stage < 0 {
		return fmt.Errorf("store: snapshot stage %d: negative stage index", snap.Stage)
	}
	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}

	data, err := session.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot %s stage %d: %w", sessionID, snap.Stage, err)
	}
	if err := writeFileAtomic(s.stagePath(sessionID, snap.Stage), data); err != nil {
		return fmt.Errorf("store: persist snapshot %s stage %d: %w", sessionID, snap.Stage, err)
	}
	return s.writeMetadata(sessionID)
}

// Get reads the snapshot for one stage index. Returns ErrNotFound if the
// session has no snapshot at that index.
func (s *Snapshots) Get(sessionID string, stage int) (*session.Snapshot, error) {
	data, err := os.ReadFile(s.stagePath(sessionID, stage))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("store: snapshot %s stage %d: %w", sessionID, stage, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: read snapshot %s stage %d: %w", sessionID, stage, err)
	}
	snap, err := session.UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode snapshot %s stage %d: %w", sessionID, stage, err)
	}
	return snap, nil
}

// Stages returns the captured stage indices for a session in ascending
// order. A session with no snapshots yields an empty slice, not an error.
func (s *Snapshots) Stages(sessionID string) ([]int, error) {
	entries, err := os.ReadDir(s.sessionDir(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots %s: %w", sessionID, err)
	}

	var stages []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "stage_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "stage_"), ".json"))
		if err != nil {
			continue
		}
		stages = append(stages, n)
	}
	sort.Ints(stages)
	return stages, nil
}

// Metadata returns the session's snapshot index.
func (s *Snapshots) Metadata(sessionID string) (*session.Metadata, error) {
	stages, err := s.Stages(sessionID)
	if err != nil {
		return nil, err
	}
	return &session.Metadata{
		SessionID:      sessionID,
		StagesCaptured: len(stages),
		StageNumbers:   stages,
	}, nil
}

func (s *Snapshots) writeMetadata(sessionID string) error {
	meta, err := s.Metadata(sessionID)
	if err != nil {
		return err
	}
	data, err := session.MarshalMetadata(meta)
	if err != nil {
		return fmt.Errorf("store: marshal metadata %s: %w", sessionID, err)
	}
	path := filepath.Join(s.sessionDir(sessionID), "metadata.json")
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("store: persist metadata %s: %w", sessionID, err)
	}
	return nil
}
