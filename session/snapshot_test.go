package session

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSnapshotFlattensVariables(t *testing.T) {
	snap := &Snapshot{
		Stage: 2,
		Variables: map[string]any{
			"stage":             float64(2),
			"notificationCount": float64(45),
			"isHellMode":        false,
			"playerName":        "ana",
			"urgentTimers":      []any{float64(3), float64(9)},
		},
		Markup:     "<div id=\"feed\"></div>",
		CapturedAt: 41.2,
	}

	data, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatal(err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatal(err)
	}
	if flat["stage"] != float64(2) {
		t.Errorf("stage: got %v, want 2", flat["stage"])
	}
	if flat["notificationCount"] != float64(45) {
		t.Errorf("notificationCount not flattened: got %v", flat["notificationCount"])
	}
	if flat["markup"] != snap.Markup {
		t.Errorf("markup: got %v, want %q", flat["markup"], snap.Markup)
	}
	if flat["captured_at"] != 41.2 {
		t.Errorf("captured_at: got %v, want 41.2", flat["captured_at"])
	}

	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != snap.Stage {
		t.Errorf("Stage: got %d, want %d", got.Stage, snap.Stage)
	}
	if got.Markup != snap.Markup {
		t.Errorf("Markup: got %q, want %q", got.Markup, snap.Markup)
	}
	if got.CapturedAt != snap.CapturedAt {
		t.Errorf("CapturedAt: got %v, want %v", got.CapturedAt, snap.CapturedAt)
	}
	// The discriminant stays restorable: "stage" must survive in Variables.
	if !reflect.DeepEqual(got.Variables, snap.Variables) {
		t.Errorf("Variables: got %+v, want %+v", got.Variables, snap.Variables)
	}
}

func TestSnapshotUnmarshalRejectsBadStage(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{"missing", `{"markup": "<div></div>"}`},
		{"fractional", `{"stage": 1.5, "markup": ""}`},
		{"string", `{"stage": "two", "markup": ""}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := UnmarshalSnapshot([]byte(tc.data)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
