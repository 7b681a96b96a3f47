package session

import (
	"encoding/json"
	"fmt"
	"math"
)

// Snapshot is a point-in-time capture of application state at a stage
// boundary: the full named-variable set plus the serialized markup of the
// application's render region. Stage is the stage the application had just
// entered, so a snapshot at index N is equally the terminal state of N-1.
//
// On disk the variables are flattened into the top-level JSON object next to
// the reserved keys "stage", "markup" and "captured_at". The discriminant
// variable is conventionally named "stage" and then serves as both the
// reserved key and the restorable variable; other variable names must not
// collide with the reserved keys (the target profile enforces this).
type Snapshot struct {
	Stage      int
	Variables  map[string]any // serialized values only: numbers, booleans, strings, lists
	Markup     string
	CapturedAt float64 // seconds since session start, ordering/debugging only
}

// reserved keys of the flattened snapshot object. "stage" is reserved too
// but doubles as a variable, see Snapshot doc.
const (
	keyStage      = "stage"
	keyMarkup     = "markup"
	keyCapturedAt = "captured_at"
)

// MarshalJSON flattens Variables into the top-level object. The reserved
// keys always win over a variable of the same name.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(s.Variables)+3)
	for name, value := range s.Variables {
		flat[name] = value
	}
	flat[keyStage] = s.Stage
	flat[keyMarkup] = s.Markup
	flat[keyCapturedAt] = s.CapturedAt
	return json.Marshal(flat)
}

// UnmarshalJSON is the inverse of MarshalJSON. The "stage" key is kept in
// Variables as well so that restoring a snapshot reinjects the discriminant.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	stage, ok := flat[keyStage]
	if !ok {
		return fmt.Errorf("session: snapshot missing %q key", keyStage)
	}
	n, ok := toStageIndex(stage)
	if !ok {
		return fmt.Errorf("session: snapshot %q is not an integer: %v", keyStage, stage)
	}
	s.Stage = n

	if m, ok := flat[keyMarkup].(string); ok {
		s.Markup = m
	}
	if at, ok := flat[keyCapturedAt].(float64); ok {
		s.CapturedAt = at
	}
	delete(flat, keyMarkup)
	delete(flat, keyCapturedAt)
	s.Variables = flat
	return nil
}

func toStageIndex(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// Metadata indexes the snapshots captured for one session. It is rewritten
// whenever a snapshot is persisted, so it always reflects the store contents.
type Metadata struct {
	SessionID      string `json:"session_id"`
	StagesCaptured int    `json:"stages_captured"`
	StageNumbers   []int  `json:"stage_numbers"` // ascending
}
