package replay

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/pagetape/browser/browsertest"
	"github.com/hazyhaar/pagetape/session"
)

// virtualClock drives the replayer's scheduling seams without real time.
// Sleeping advances the clock by exactly the requested duration and records
// it, so tests can assert the schedule to the nanosecond.
type virtualClock struct {
	t     time.Time
	waits []time.Duration
}

func newVirtualClock() *virtualClock {
	return &virtualClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *virtualClock) now() time.Time { return c.t }

func (c *virtualClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.waits = append(c.waits, d)
	c.t = c.t.Add(d)
	return nil
}

func testReplayer(c *virtualClock, opts ...Option) *Replayer {
	r := New(nil, opts...)
	r.now = c.now
	r.sleep = c.sleep
	return r
}

func TestReplay_SpeedSchedule(t *testing.T) {
	rec := &session.Recording{
		SessionID: "session_20260115_090000_k3xq1z",
		Events: []session.Event{
			{Kind: session.KindClick, Selector: "#feed", X: 100, Y: 200, Offset: 0.5},
			{Kind: session.KindScroll, ScrollY: 480, Offset: 3.2},
			{Kind: session.KindKey, Key: "Enter", Offset: 8.1},
		},
	}
	clock := newVirtualClock()
	page := browsertest.New()

	sum, err := testReplayer(clock).Replay(context.Background(), page, rec, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	// At double speed the gaps 0.5, 2.7, 4.9 halve.
	wantWaits := []time.Duration{
		250 * time.Millisecond,
		1350 * time.Millisecond,
		2450 * time.Millisecond,
	}
	if !reflect.DeepEqual(clock.waits, wantWaits) {
		t.Errorf("waits: got %v, want %v", clock.waits, wantWaits)
	}
	if sum.Dispatched != 3 || sum.Failed != 0 {
		t.Errorf("summary: got dispatched=%d failed=%d", sum.Dispatched, sum.Failed)
	}
	if sum.WallTime != 4050*time.Millisecond {
		t.Errorf("WallTime: got %v, want 4.05s", sum.WallTime)
	}
	if n := len(page.Dispatches()); n != 3 {
		t.Errorf("dispatches: got %d, want 3", n)
	}
}

func TestReplay_InvalidSpeed(t *testing.T) {
	rec := &session.Recording{
		SessionID: "s",
		Events:    []session.Event{{Kind: session.KindClick, Selector: "#a"}},
	}
	page := browsertest.New()

	for _, speed := range []float64{0, -1.5} {
		_, err := testReplayer(newVirtualClock()).Replay(context.Background(), page, rec, speed)
		if !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("speed %g: got %v, want ErrInvalidSpeed", speed, err)
		}
	}
	if n := len(page.Dispatches()); n != 0 {
		t.Errorf("dispatched %d events despite invalid speed", n)
	}
}

func TestReplay_SelectorFallback(t *testing.T) {
	rec := &session.Recording{
		SessionID: "s",
		Events: []session.Event{
			{Kind: session.KindClick, Selector: "#gone", X: 42, Y: 84, Offset: 0},
			{Kind: session.KindClick, Selector: "#still-there", X: 1, Y: 2, Offset: 0.1},
		},
	}
	page := browsertest.New()
	page.FailSelectors["#gone"] = true

	sum, err := testReplayer(newVirtualClock()).Replay(context.Background(), page, rec, 1)
	if err != nil {
		t.Fatal(err)
	}
	// The fallback click counts as dispatched, not failed.
	if sum.Dispatched != 2 || sum.Failed != 0 {
		t.Errorf("summary: got dispatched=%d failed=%d", sum.Dispatched, sum.Failed)
	}
	want := []browsertest.Dispatch{
		{Kind: "click_at", X: 42, Y: 84},
		{Kind: "click", Selector: "#still-there"},
	}
	if got := page.Dispatches(); !reflect.DeepEqual(got, want) {
		t.Errorf("dispatches: got %+v, want %+v", got, want)
	}
}

func TestReplay_DispatchFailureContinues(t *testing.T) {
	rec := &session.Recording{
		SessionID: "s",
		Events: []session.Event{
			{Kind: session.KindClick, Selector: "#a", Offset: 0},
			{Kind: session.Kind("wheel"), Offset: 0.1},
			{Kind: session.KindKey, Key: "Escape", Offset: 0.2},
		},
	}
	page := browsertest.New()

	sum, err := testReplayer(newVirtualClock()).Replay(context.Background(), page, rec, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Dispatched != 2 || sum.Failed != 1 {
		t.Errorf("summary: got dispatched=%d failed=%d", sum.Dispatched, sum.Failed)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].Index != 1 {
		t.Fatalf("failures: got %+v", sum.Failures)
	}
	if !strings.Contains(sum.Failures[0].Reason, "unknown event type") {
		t.Errorf("failure reason: got %q", sum.Failures[0].Reason)
	}
}

func TestReplay_CancelDuringWait(t *testing.T) {
	rec := &session.Recording{
		SessionID: "s",
		Events: []session.Event{
			{Kind: session.KindClick, Selector: "#a", Offset: 0},
			{Kind: session.KindClick, Selector: "#b", Offset: 5},
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := newVirtualClock()
	r := testReplayer(clock)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	page := browsertest.New()

	sum, err := r.Replay(ctx, page, rec, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if sum.Dispatched != 1 {
		t.Errorf("Dispatched: got %d, want 1", sum.Dispatched)
	}
	if got := page.Dispatches(); len(got) != 1 || got[0].Selector != "#a" {
		t.Errorf("dispatches: got %+v", got)
	}
}

func TestReplay_WithPauseFreezesTimers(t *testing.T) {
	rec := &session.Recording{
		SessionID: "s",
		Events:    []session.Event{{Kind: session.KindClick, Selector: "#a"}},
	}
	page := browsertest.New()
	page.RespondValue("clearInterval", 7)

	if _, err := testReplayer(newVirtualClock(), WithPause()).Replay(context.Background(), page, rec, 1); err != nil {
		t.Fatal(err)
	}
	var froze bool
	for _, js := range page.EvalLog() {
		if strings.Contains(js, "clearInterval") {
			froze = true
		}
	}
	if !froze {
		t.Error("WithPause did not evaluate the timer freeze script")
	}
}

func TestReplay_NoPauseByDefault(t *testing.T) {
	rec := &session.Recording{
		SessionID: "s",
		Events:    []session.Event{{Kind: session.KindClick, Selector: "#a"}},
	}
	page := browsertest.New()

	if _, err := testReplayer(newVirtualClock()).Replay(context.Background(), page, rec, 1); err != nil {
		t.Fatal(err)
	}
	if n := len(page.EvalLog()); n != 0 {
		t.Errorf("evaluated %d scripts, want none without WithPause", n)
	}
}

func TestReplay_EmptyRecording(t *testing.T) {
	clock := newVirtualClock()
	sum, err := testReplayer(clock).Replay(context.Background(), browsertest.New(), &session.Recording{SessionID: "empty"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Events != 0 || sum.WallTime != 0 || len(clock.waits) != 0 {
		t.Errorf("summary: got %+v, waits %v", sum, clock.waits)
	}
}

func TestRunScript(t *testing.T) {
	sc := &session.Script{
		SourceRecording: "session_x",
		Actions: []session.Action{
			{Type: session.KindClick, Selector: "#open", Wait: 0},
			{Type: session.KindScroll, ScrollY: 300, Wait: 0.5},
			{Type: session.KindKey, Key: "Enter", Wait: 2.7},
		},
	}
	clock := newVirtualClock()
	page := browsertest.New()

	sum, err := testReplayer(clock).RunScript(context.Background(), page, sc)
	if err != nil {
		t.Fatal(err)
	}
	wantWaits := []time.Duration{500 * time.Millisecond, 2700 * time.Millisecond}
	if !reflect.DeepEqual(clock.waits, wantWaits) {
		t.Errorf("waits: got %v, want %v", clock.waits, wantWaits)
	}
	if sum.Dispatched != 3 || sum.SessionID != "session_x" {
		t.Errorf("summary: got %+v", sum)
	}
	want := []browsertest.Dispatch{
		{Kind: "click", Selector: "#open"},
		{Kind: "scroll", Y: 300},
		{Kind: "key", Key: "Enter"},
	}
	if got := page.Dispatches(); !reflect.DeepEqual(got, want) {
		t.Errorf("dispatches: got %+v, want %+v", got, want)
	}
}
