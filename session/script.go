package session

import (
	"fmt"
	"math"
)

// Action is one scripted interaction: the event to dispatch plus the wait,
// in seconds, before dispatching it.
type Action struct {
	Type     Kind    `json:"type"`
	Selector string  `json:"selector,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	ScrollX  float64 `json:"scrollX,omitempty"`
	ScrollY  float64 `json:"scrollY,omitempty"`
	Key      string  `json:"key,omitempty"`
	Wait     float64 `json:"wait"`
}

// Event converts the action to a dispatchable event. The offset is not
// meaningful for scripted actions and is left zero.
func (a Action) Event() Event {
	return Event{
		Kind:     a.Type,
		Selector: a.Selector,
		X:        a.X,
		Y:        a.Y,
		ScrollX:  a.ScrollX,
		ScrollY:  a.ScrollY,
		Key:      a.Key,
	}
}

// Script is a deterministic action sequence derived from a recording. Unlike
// a recording it carries explicit per-action waits, drops pointer moves, and
// is meant to be edited by hand and driven against a page while a fresh
// capture runs.
type Script struct {
	Description     string   `json:"description,omitempty"`
	SourceRecording string   `json:"source_recording,omitempty"`
	TotalActions    int      `json:"total_actions"`
	Actions         []Action `json:"actions"`
}

// ScriptFromRecording converts a recording into a script. Mouse moves are
// dropped (they dominate volume and rarely matter for driving an app), waits
// are the inter-event gaps of the surviving events rounded to 0.1s, and
// sub-0.1s gaps collapse to zero so converted scripts run crisply.
func ScriptFromRecording(rec *Recording) *Script {
	s := &Script{
		Description:     fmt.Sprintf("converted from %s", rec.SessionID),
		SourceRecording: rec.SessionID,
	}
	prev := 0.0
	for _, ev := range rec.Events {
		if ev.Kind == KindMove {
			continue
		}
		wait := math.Round((ev.Offset-prev)*10) / 10
		if wait < 0.1 {
			wait = 0
		}
		prev = ev.Offset
		s.Actions = append(s.Actions, Action{
			Type:     ev.Kind,
			Selector: ev.Selector,
			X:        ev.X,
			Y:        ev.Y,
			ScrollX:  ev.ScrollX,
			ScrollY:  ev.ScrollY,
			Key:      ev.Key,
			Wait:     wait,
		})
	}
	s.TotalActions = len(s.Actions)
	return s
}
