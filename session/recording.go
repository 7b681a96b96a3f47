package session

import "time"

// Recording is one completed capture session. Events are append-only while
// the session is live and immutable once persisted; their order is
// load-bearing, replay correctness depends on it.
type Recording struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"timestamp"`
	Source    string    `json:"html_path"` // document path or URL that was driven
	Duration  float64   `json:"duration_seconds"`
	Events    []Event   `json:"events"`
}

// CountByKind tallies events per kind, for summaries and listings.
func (r *Recording) CountByKind() map[Kind]int {
	counts := make(map[Kind]int, 4)
	for _, ev := range r.Events {
		counts[ev.Kind]++
	}
	return counts
}
