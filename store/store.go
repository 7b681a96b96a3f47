// Package store provides the durable persistence layer for pagetape:
// recording files, stage snapshot files with their per-session metadata
// index, and the SQLite drain journal that bounds event loss when a
// recording terminates abruptly.
//
// File writes are all-or-nothing: data is written to a temporary sibling
// and renamed into place, so a failed write never leaves a partial record.
package store

import (
	"errors"
	"fmt"
	"os"
)

// ErrNotFound is returned when a session or stage snapshot does not exist.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// writeFileAtomic writes data to target via a temporary sibling file and
// rename, removing the temporary on failure.
func writeFileAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}
