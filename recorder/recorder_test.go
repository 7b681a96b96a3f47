package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagetape/browser/browsertest"
	"github.com/hazyhaar/pagetape/dbopen"
	"github.com/hazyhaar/pagetape/session"
	"github.com/hazyhaar/pagetape/store"
	"github.com/hazyhaar/pagetape/target"
)

func testStores(t *testing.T) (*store.Recordings, *store.Snapshots) {
	t.Helper()
	dir := t.TempDir()
	return store.NewRecordings(filepath.Join(dir, "recordings")),
		store.NewSnapshots(filepath.Join(dir, "snapshots"))
}

func testProfile() *target.Profile {
	return &target.Profile{
		StageVariable:  "stage",
		Variables:      []string{"stage", "tapCount"},
		RegionSelector: "#app",
	}
}

// fastConfig returns a config with millisecond intervals so loop tests
// finish quickly.
func fastConfig(recs *store.Recordings, snaps *store.Snapshots) Config {
	return Config{
		Recordings:    recs,
		Snapshots:     snaps,
		DrainInterval: time.Millisecond,
		PollInterval:  time.Millisecond,
	}
}

func drainBatch(events []map[string]any, stop bool) map[string]any {
	if events == nil {
		events = []map[string]any{}
	}
	return map[string]any{"events": events, "stop": stop}
}

func observed(stage int, tapCount int) map[string]any {
	return map[string]any{
		"stage":  stage,
		"vars":   map[string]any{"stage": stage, "tapCount": tapCount},
		"markup": "<div>s" + string(rune('0'+stage)) + "</div>",
	}
}

func TestRecord_SaveKeyStopsAndPersists(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()

	var drains atomic.Int64
	page.Respond("__pagetape", func([]any) (any, error) {
		switch drains.Add(1) {
		case 1:
			return drainBatch([]map[string]any{
				{"type": "click", "selector": "#post", "x": 10, "y": 20, "timestamp": 0.4},
			}, false), nil
		default:
			return drainBatch([]map[string]any{
				{"type": "keypress", "key": "j", "timestamp": 0.9},
			}, true), nil
		}
	})

	r := New(fastConfig(recs, snaps))
	r.newID = func() string { return "session_t1" }

	res, err := r.Record(context.Background(), page, "file:///tmp/app.html")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopSaveKey {
		t.Errorf("Reason: got %s, want %s", res.Reason, StopSaveKey)
	}
	if res.Events != 2 {
		t.Errorf("Events: got %d, want 2", res.Events)
	}

	rec, err := recs.Load("session_t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Events) != 2 || rec.Events[0].Selector != "#post" || rec.Events[1].Key != "j" {
		t.Errorf("persisted events: %+v", rec.Events)
	}
	if rec.Source != "file:///tmp/app.html" {
		t.Errorf("Source: got %q", rec.Source)
	}

	// The capture script must be installed before navigation.
	scripts := page.InitScripts()
	if len(scripts) != 1 || !strings.Contains(scripts[0], "mousemove") {
		t.Errorf("init scripts: got %d", len(scripts))
	}
	if nav := page.Navigated(); len(nav) != 1 || nav[0] != "file:///tmp/app.html" {
		t.Errorf("navigated: got %v", nav)
	}
}

func TestRecord_StageTransitions(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()

	// The target walks 0 -> 1 -> 2; the duplicate 0 must not re-capture.
	var polls atomic.Int64
	page.Respond("out.stage", func([]any) (any, error) {
		switch n := polls.Add(1); {
		case n <= 2:
			return observed(0, 1), nil
		case n == 3:
			return observed(1, 4), nil
		default:
			return observed(2, 9), nil
		}
	})
	page.Respond("__pagetape", func([]any) (any, error) {
		return drainBatch(nil, polls.Load() >= 5), nil
	})

	cfg := fastConfig(recs, snaps)
	cfg.Profile = testProfile()
	r := New(cfg)
	r.newID = func() string { return "session_t2" }

	res, err := r.Record(context.Background(), page, "file:///app.html")
	if err != nil {
		t.Fatal(err)
	}

	stages, err := snaps.Stages("session_t2")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 2}
	if len(stages) != 3 || stages[0] != 0 || stages[1] != 1 || stages[2] != 2 {
		t.Errorf("stages: got %v, want %v", stages, want)
	}
	if len(res.Stages) != 3 {
		t.Errorf("result stages: got %v", res.Stages)
	}

	snap, err := snaps.Get("session_t2", 1)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Variables["tapCount"] != float64(4) {
		t.Errorf("snapshot 1 tapCount: got %v", snap.Variables["tapCount"])
	}
	if snap.Markup != "<div>s1</div>" {
		t.Errorf("snapshot 1 markup: got %q", snap.Markup)
	}
	if snap.CapturedAt < 0 {
		t.Errorf("CapturedAt: got %v", snap.CapturedAt)
	}
}

func TestRecord_StageJumpSkipsIntermediates(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()

	// The target jumps 1 -> 3 between polls; stage 2 is never observed.
	var polls atomic.Int64
	page.Respond("out.stage", func([]any) (any, error) {
		if polls.Add(1) == 1 {
			return observed(1, 2), nil
		}
		return observed(3, 7), nil
	})
	page.Respond("__pagetape", func([]any) (any, error) {
		return drainBatch(nil, polls.Load() >= 3), nil
	})

	cfg := fastConfig(recs, snaps)
	cfg.Profile = testProfile()
	r := New(cfg)
	r.newID = func() string { return "session_t3" }

	if _, err := r.Record(context.Background(), page, "file:///app.html"); err != nil {
		t.Fatal(err)
	}

	stages, err := snaps.Stages("session_t3")
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 2 || stages[0] != 1 || stages[1] != 3 {
		t.Errorf("stages: got %v, want [1 3]", stages)
	}
	if _, err := snaps.Get("session_t3", 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(2): got %v, want ErrNotFound", err)
	}
}

func TestRecord_StageBackwardsOverwrites(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()

	var polls atomic.Int64
	page.Respond("out.stage", func([]any) (any, error) {
		if polls.Add(1) == 1 {
			return observed(2, 5), nil
		}
		return observed(1, 9), nil
	})
	page.Respond("__pagetape", func([]any) (any, error) {
		return drainBatch(nil, polls.Load() >= 3), nil
	})

	cfg := fastConfig(recs, snaps)
	cfg.Profile = testProfile()
	r := New(cfg)
	r.newID = func() string { return "session_t4" }

	if _, err := r.Record(context.Background(), page, "file:///app.html"); err != nil {
		t.Fatal(err)
	}

	stages, err := snaps.Stages("session_t4")
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 2 || stages[0] != 1 || stages[1] != 2 {
		t.Errorf("stages: got %v, want [1 2]", stages)
	}
	snap, err := snaps.Get("session_t4", 1)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Variables["tapCount"] != float64(9) {
		t.Errorf("overwritten snapshot 1 tapCount: got %v", snap.Variables["tapCount"])
	}
}

func TestRecord_PageClosedSavesPartial(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()

	var drains atomic.Int64
	page.Respond("__pagetape", func([]any) (any, error) {
		if drains.Add(1) == 1 {
			return drainBatch([]map[string]any{
				{"type": "scroll", "scrollY": 300, "timestamp": 0.2},
			}, false), nil
		}
		return nil, errors.New("target closed")
	})

	r := New(fastConfig(recs, snaps))
	r.newID = func() string { return "session_t5" }

	res, err := r.Record(context.Background(), page, "file:///app.html")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopPageClosed {
		t.Errorf("Reason: got %s, want %s", res.Reason, StopPageClosed)
	}

	rec, err := recs.Load("session_t5")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Events) != 1 || rec.Events[0].Kind != session.KindScroll {
		t.Errorf("persisted events: %+v", rec.Events)
	}
}

func TestRecord_CancelFlushesAndSaves(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var drains atomic.Int64
	page.Respond("__pagetape", func([]any) (any, error) {
		switch drains.Add(1) {
		case 1:
			cancel()
			return drainBatch([]map[string]any{
				{"type": "click", "selector": "#a", "timestamp": 0.1},
			}, false), nil
		default:
			// The post-cancel flush picks up the tail.
			return drainBatch([]map[string]any{
				{"type": "keypress", "key": "x", "timestamp": 0.3},
			}, false), nil
		}
	})

	r := New(fastConfig(recs, snaps))
	r.newID = func() string { return "session_t6" }

	res, err := r.Record(ctx, page, "file:///app.html")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopCancelled {
		t.Errorf("Reason: got %s, want %s", res.Reason, StopCancelled)
	}

	rec, err := recs.Load("session_t6")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Events) != 2 {
		t.Errorf("persisted events: got %d, want 2 (drain + flush)", len(rec.Events))
	}
}

func TestRecord_JournalLifecycle(t *testing.T) {
	recs, snaps := testStores(t)
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.JournalSchema))
	journal := store.NewJournal(db)
	page := browsertest.New()

	var drains atomic.Int64
	var journaled atomic.Int64
	page.Respond("__pagetape", func([]any) (any, error) {
		switch drains.Add(1) {
		case 1:
			return drainBatch([]map[string]any{
				{"type": "click", "selector": "#a", "timestamp": 0.1},
			}, false), nil
		default:
			// By the second drain the first batch must already be durable.
			if rec, err := journal.Recover(context.Background(), "session_t7"); err == nil {
				journaled.Store(int64(len(rec.Events)))
			}
			return drainBatch(nil, true), nil
		}
	})

	cfg := fastConfig(recs, snaps)
	cfg.Journal = journal
	r := New(cfg)
	r.newID = func() string { return "session_t7" }

	if _, err := r.Record(context.Background(), page, "file:///app.html"); err != nil {
		t.Fatal(err)
	}

	if journaled.Load() != 1 {
		t.Errorf("journaled events mid-session: got %d, want 1", journaled.Load())
	}
	sessions, err := journal.Sessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("journal not cleared after save: %v", sessions)
	}
}

func TestRecordScript_DrivesAndStops(t *testing.T) {
	recs, snaps := testStores(t)
	page := browsertest.New()
	page.Respond("__pagetape", func([]any) (any, error) {
		return drainBatch(nil, false), nil
	})

	sc := &session.Script{
		SourceRecording: "session_src",
		Actions: []session.Action{
			{Type: session.KindClick, Selector: "#btn"},
			{Type: session.KindKey, Key: "Enter"},
		},
	}

	r := New(fastConfig(recs, snaps))
	r.newID = func() string { return "session_t8" }

	res, err := r.RecordScript(context.Background(), page, "file:///app.html", sc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != StopScriptDone {
		t.Errorf("Reason: got %s, want %s", res.Reason, StopScriptDone)
	}

	dispatches := page.Dispatches()
	if len(dispatches) != 2 || dispatches[0].Kind != "click" || dispatches[1].Kind != "key" {
		t.Errorf("dispatches: got %+v", dispatches)
	}
	if _, err := recs.Load("session_t8"); err != nil {
		t.Errorf("recording not persisted: %v", err)
	}
}

func TestRecord_ProfileWithoutSnapshotStore(t *testing.T) {
	recs, _ := testStores(t)
	page := browsertest.New()

	cfg := fastConfig(recs, nil)
	cfg.Profile = testProfile()

	if _, err := New(cfg).Record(context.Background(), page, "file:///tmp/app.html"); err == nil {
		t.Fatal("expected error for profile without snapshot store")
	}
	// Rejected before the session touched the page.
	if len(page.InitScripts()) != 0 || len(page.Navigated()) != 0 {
		t.Errorf("page touched: scripts=%d navigations=%d",
			len(page.InitScripts()), len(page.Navigated()))
	}
}

func TestCaptureScript_ThrottleSubstitution(t *testing.T) {
	js := captureScript(100 * time.Millisecond)
	if strings.Contains(js, moveThrottleToken) {
		t.Error("throttle token not substituted")
	}
	if !strings.Contains(js, "< 100") {
		t.Error("throttle value missing from script")
	}
}

func TestBuildObservationScript(t *testing.T) {
	js := buildObservationScript(testProfile())
	for _, want := range []string{
		"typeof stage === 'number'",
		`out.vars["tapCount"] = tapCount`,
		`document.querySelector("#app")`,
		"region.innerHTML",
	} {
		if !strings.Contains(js, want) {
			t.Errorf("observation script missing %q:\n%s", want, js)
		}
	}
}
