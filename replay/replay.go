// Package replay dispatches recorded interaction sessions against a live
// page on their original timeline. Events are scheduled absolutely from the
// start of the run, so per-event dispatch latency shortens the following
// wait instead of shifting the whole tail. Waits scale by the speed factor;
// dispatch failures are reported in the summary but do not stop the run.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/pagetape/browser"
	"github.com/hazyhaar/pagetape/session"
)

// ErrInvalidSpeed reports a non-positive speed factor.
var ErrInvalidSpeed = errors.New("replay: speed must be positive")

// Failure describes one event that could not be dispatched.
type Failure struct {
	Index    int          `json:"index"`
	Kind     session.Kind `json:"type"`
	Selector string       `json:"selector,omitempty"`
	Reason   string       `json:"reason"`
}

// Summary is the outcome of one replay run. It is populated even when the
// run stops early on cancellation.
type Summary struct {
	SessionID  string        `json:"session_id"`
	Events     int           `json:"events"`
	Dispatched int           `json:"dispatched"`
	Failed     int           `json:"failed"`
	Failures   []Failure     `json:"failures,omitempty"`
	Speed      float64       `json:"speed"`
	WallTime   time.Duration `json:"wall_time"`
}

// Replayer drives recordings and scripts against a page.
type Replayer struct {
	logger *slog.Logger
	pause  bool

	// Clock seams, swapped in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithPause freezes the page's own timers once replay completes, so the
// final state can be inspected without the application advancing further.
func WithPause() Option {
	return func(r *Replayer) { r.pause = true }
}

// New returns a Replayer logging through logger. A nil logger falls back to
// slog.Default().
func New(logger *slog.Logger, opts ...Option) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Replayer{logger: logger, now: time.Now, sleep: sleepCtx}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Replay dispatches every event of rec against page, each scheduled at
// offset/speed seconds from the start of the run. A speed above 1 compresses
// the timeline, below 1 stretches it. Failed dispatches are logged, counted,
// and skipped. Cancellation is honored between events and during waits; the
// returned summary is valid even when the error is non-nil.
func (r *Replayer) Replay(ctx context.Context, page browser.Page, rec *session.Recording, speed float64) (*Summary, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidSpeed, speed)
	}
	sum := &Summary{SessionID: rec.SessionID, Events: len(rec.Events), Speed: speed}
	r.logger.Info("replay starting",
		"session_id", rec.SessionID,
		"events", len(rec.Events),
		"speed", speed)

	start := r.now()
	for i, ev := range rec.Events {
		if err := ctx.Err(); err != nil {
			sum.WallTime = r.now().Sub(start)
			return sum, fmt.Errorf("replay: stopped before event %d: %w", i, err)
		}
		due := start.Add(seconds(ev.Offset / speed))
		if wait := due.Sub(r.now()); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				sum.WallTime = r.now().Sub(start)
				return sum, fmt.Errorf("replay: stopped before event %d: %w", i, err)
			}
		}
		if err := r.dispatch(ctx, page, i, ev); err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Index: i, Kind: ev.Kind, Selector: ev.Selector, Reason: err.Error()})
			r.logger.Warn("dispatch failed", "event", i, "type", string(ev.Kind), "error", err)
			continue
		}
		sum.Dispatched++
	}
	sum.WallTime = r.now().Sub(start)

	if r.pause {
		r.freeze(ctx, page)
	}
	r.logger.Info("replay finished",
		"session_id", rec.SessionID,
		"dispatched", sum.Dispatched,
		"failed", sum.Failed,
		"wall_time", sum.WallTime)
	return sum, nil
}

// RunScript dispatches a script's actions in order, sleeping each action's
// wait first. Scripts run at recorded pace: they exist to drive an
// application deterministically while a fresh capture observes it, so there
// is no speed factor.
func (r *Replayer) RunScript(ctx context.Context, page browser.Page, sc *session.Script) (*Summary, error) {
	sum := &Summary{SessionID: sc.SourceRecording, Events: len(sc.Actions), Speed: 1}
	start := r.now()
	for i, a := range sc.Actions {
		if err := ctx.Err(); err != nil {
			sum.WallTime = r.now().Sub(start)
			return sum, fmt.Errorf("replay: script stopped before action %d: %w", i, err)
		}
		if a.Wait > 0 {
			if err := r.sleep(ctx, seconds(a.Wait)); err != nil {
				sum.WallTime = r.now().Sub(start)
				return sum, fmt.Errorf("replay: script stopped before action %d: %w", i, err)
			}
		}
		if err := r.dispatch(ctx, page, i, a.Event()); err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Index: i, Kind: a.Type, Selector: a.Selector, Reason: err.Error()})
			r.logger.Warn("script dispatch failed", "action", i, "type", string(a.Type), "error", err)
			continue
		}
		sum.Dispatched++
	}
	sum.WallTime = r.now().Sub(start)
	return sum, nil
}

// dispatch applies one event. Clicks try the recorded selector first and
// fall back to the recorded viewport coordinates when the selector no longer
// resolves, which keeps replays usable after cosmetic markup drift.
func (r *Replayer) dispatch(ctx context.Context, page browser.Page, i int, ev session.Event) error {
	switch ev.Kind {
	case session.KindClick:
		if ev.Selector != "" {
			err := page.DispatchClick(ctx, ev.Selector)
			if err == nil {
				return nil
			}
			r.logger.Warn("selector miss, clicking recorded coordinates",
				"event", i,
				"selector", ev.Selector,
				"x", ev.X,
				"y", ev.Y,
				"error", err)
		}
		return page.DispatchClickAt(ctx, ev.X, ev.Y)
	case session.KindScroll:
		return page.DispatchScroll(ctx, ev.ScrollX, ev.ScrollY)
	case session.KindKey:
		return page.DispatchKey(ctx, ev.Key)
	case session.KindMove:
		return page.DispatchMouseMove(ctx, ev.X, ev.Y)
	default:
		return fmt.Errorf("replay: unknown event type %q", ev.Kind)
	}
}

// freezeScript neutralizes the page's pending timers. Creating one more
// timeout yields the current upper bound of live timer ids; everything at or
// below it is cleared.
const freezeScript = `() => {
	const top = setTimeout(() => {}, 0);
	for (let id = 0; id <= top; id++) {
		clearTimeout(id);
		clearInterval(id);
	}
	return top;
}`

func (r *Replayer) freeze(ctx context.Context, page browser.Page) {
	var top int
	if err := page.Eval(ctx, freezeScript, &top); err != nil {
		r.logger.Warn("freezing page timers failed", "error", err)
		return
	}
	r.logger.Info("page timers frozen", "cleared_through", top)
}

// seconds converts float seconds to a Duration, rounded to the nearest
// nanosecond so offset arithmetic does not drift on binary fractions.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
