// Package session defines the persisted record types produced and consumed
// by pagetape: recordings of timed interaction events, stage snapshots of
// application state, and action scripts derived from recordings. These are
// the public contract: stores, the replayer, and external consumers all
// exchange these types.
package session

// Kind is the type of interaction event observed on the page.
type Kind string

const (
	KindClick  Kind = "click"     // pointer click (selector plus viewport coordinates)
	KindScroll Kind = "scroll"    // document scroll position change
	KindKey    Kind = "keypress"  // key value as reported by the page
	KindMove   Kind = "mousemove" // pointer move, throttled at capture time
)

// Event is a single observed interaction. Field presence depends on Kind:
// clicks and moves carry coordinates, scrolls carry scroll offsets, key
// events carry the key value. Offset is elapsed seconds since session start
// and is non-decreasing across a recording; duplicate offsets are permitted
// for near-simultaneous events and preserve their relative order.
type Event struct {
	Kind     Kind    `json:"type"`
	Selector string  `json:"selector,omitempty"` // best-effort stable locator, may be empty
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	ScrollX  float64 `json:"scrollX,omitempty"`
	ScrollY  float64 `json:"scrollY,omitempty"`
	Key      string  `json:"key,omitempty"`
	Code     string  `json:"code,omitempty"` // physical key code, informational only
	Offset   float64 `json:"timestamp"`
}
