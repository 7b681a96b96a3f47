// Package recorder captures a live interaction session: it injects the
// capture script before the document loads, drains the in-page event buffer
// on a fixed interval, and, when a target profile is configured, polls the
// application's stage discriminant and persists a state snapshot on every
// transition. Draining and stage polling share one goroutine, so a drain
// never overlaps an observation and each observation is a single atomic
// script evaluation.
//
// A session ends on the in-page save trigger (Ctrl+S), on page closure, on
// context cancellation, or when a driving script finishes. All of them flush
// and persist; only events observed but not yet drained on an abrupt close
// can be lost, bounded by one drain interval.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazyhaar/pagetape/browser"
	"github.com/hazyhaar/pagetape/idgen"
	"github.com/hazyhaar/pagetape/replay"
	"github.com/hazyhaar/pagetape/session"
	"github.com/hazyhaar/pagetape/store"
	"github.com/hazyhaar/pagetape/target"
)

const (
	DefaultDrainInterval = 500 * time.Millisecond
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultMoveThrottle  = 100 * time.Millisecond
)

// flushTimeout bounds the final drain and journal cleanup when the session
// context is already gone.
const flushTimeout = 2 * time.Second

// StopReason says what ended a recording session.
type StopReason string

const (
	StopSaveKey    StopReason = "save_key"
	StopPageClosed StopReason = "page_closed"
	StopCancelled  StopReason = "cancelled"
	StopScriptDone StopReason = "script_done"
)

// Config wires a Recorder. Recordings is required; Snapshots is required
// when Profile is set; both are checked before a session touches the page.
// A nil Profile records events only. A nil Journal disables the durable
// drain buffer.
type Config struct {
	Recordings *store.Recordings
	Snapshots  *store.Snapshots
	Journal    *store.Journal
	Profile    *target.Profile

	DrainInterval time.Duration
	PollInterval  time.Duration
	MoveThrottle  time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DrainInterval <= 0 {
		c.DrainInterval = DefaultDrainInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MoveThrottle <= 0 {
		c.MoveThrottle = DefaultMoveThrottle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Recorder runs capture sessions against pages.
type Recorder struct {
	cfg    Config
	logger *slog.Logger
	driver *replay.Replayer

	// Seams for tests.
	newID idgen.Generator
	now   func() time.Time
}

// New returns a Recorder for the given configuration.
func New(cfg Config) *Recorder {
	cfg.defaults()
	return &Recorder{
		cfg:    cfg,
		logger: cfg.Logger,
		driver: replay.New(cfg.Logger),
		newID:  idgen.Session,
		now:    time.Now,
	}
}

// Result describes one finished recording session.
type Result struct {
	SessionID string
	Events    int
	Stages    []int
	Duration  float64
	Reason    StopReason
}

// liveSession is the mutable state of one in-flight recording.
type liveSession struct {
	id    string
	url   string
	start time.Time

	events        []session.Event
	drainFailures int

	observeJS string
	lastStage *int
	stages    []int
}

func (s *liveSession) sawStage(stage int) {
	for _, st := range s.stages {
		if st == stage {
			return
		}
	}
	s.stages = append(s.stages, stage)
}

// Record captures interactions on url until a stop trigger fires, then
// persists the recording. The page must be fresh: the capture script is
// installed before navigation so no interaction escapes it.
func (r *Recorder) Record(ctx context.Context, page browser.Page, url string) (*Result, error) {
	return r.record(ctx, page, url, nil)
}

// RecordScript drives sc against the page while capture observes it,
// producing a recording of the scripted run. The session ends when the
// script does.
func (r *Recorder) RecordScript(ctx context.Context, page browser.Page, url string, sc *session.Script) (*Result, error) {
	return r.record(ctx, page, url, sc)
}

func (r *Recorder) record(ctx context.Context, page browser.Page, url string, sc *session.Script) (*Result, error) {
	if r.cfg.Recordings == nil {
		return nil, fmt.Errorf("recorder: recordings store required")
	}
	if r.cfg.Profile != nil && r.cfg.Snapshots == nil {
		return nil, fmt.Errorf("recorder: snapshot store required when a profile is set")
	}
	s := &liveSession{
		id:    r.newID(),
		url:   url,
		start: r.now(),
	}
	if r.cfg.Profile != nil {
		s.observeJS = buildObservationScript(r.cfg.Profile)
	}

	if err := page.EvalOnNewDocument(captureScript(r.cfg.MoveThrottle)); err != nil {
		return nil, fmt.Errorf("recorder: install capture script: %w", err)
	}
	if err := page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("recorder: navigate %s: %w", url, err)
	}

	if r.cfg.Journal != nil {
		err := r.cfg.Journal.Begin(ctx, &session.Recording{
			SessionID: s.id,
			StartedAt: s.start.UTC(),
			Source:    url,
		})
		if err != nil {
			r.logger.Warn("drain journal unavailable", "session_id", s.id, "error", err)
		}
	}

	var scriptDone chan error
	if sc != nil {
		scriptDone = make(chan error, 1)
		go func() {
			sum, err := r.driver.RunScript(ctx, page, sc)
			if err == nil {
				r.logger.Info("script run finished",
					"session_id", s.id,
					"dispatched", sum.Dispatched,
					"failed", sum.Failed)
			}
			scriptDone <- err
		}()
	}

	r.logger.Info("recording started",
		"session_id", s.id,
		"url", url,
		"drain_interval", r.cfg.DrainInterval,
		"stage_capture", r.cfg.Profile != nil,
		"scripted", sc != nil)

	drainTick := time.NewTicker(r.cfg.DrainInterval)
	defer drainTick.Stop()

	// A nil channel never fires, so stage polling costs nothing without a
	// profile.
	var pollC <-chan time.Time
	if r.cfg.Profile != nil {
		pollTick := time.NewTicker(r.cfg.PollInterval)
		defer pollTick.Stop()
		pollC = pollTick.C
	}

	for {
		// Cancellation wins over any tick already pending.
		if ctx.Err() != nil {
			r.flush(page, s)
			return r.save(s, StopCancelled)
		}
		select {
		case <-ctx.Done():
			r.flush(page, s)
			return r.save(s, StopCancelled)

		case <-drainTick.C:
			stop, err := r.drainOnce(ctx, page, s)
			if err != nil {
				s.drainFailures++
				r.logger.Warn("drain failed",
					"session_id", s.id,
					"consecutive", s.drainFailures,
					"error", err)
				if s.drainFailures >= 2 {
					// The page is gone. Save what was captured.
					return r.save(s, StopPageClosed)
				}
				continue
			}
			s.drainFailures = 0
			if stop {
				return r.save(s, StopSaveKey)
			}

		case <-pollC:
			r.observeOnce(ctx, page, s)

		case err := <-scriptDone:
			if err != nil {
				r.logger.Warn("script run aborted", "session_id", s.id, "error", err)
			}
			r.flush(page, s)
			return r.save(s, StopScriptDone)
		}
	}
}

// drainOnce empties the in-page buffer. Drained batches hit the journal
// before the in-memory sequence, so a crash after this point loses nothing.
func (r *Recorder) drainOnce(ctx context.Context, page browser.Page, s *liveSession) (stop bool, err error) {
	var res drainResult
	if err := page.Eval(ctx, drainScript, &res); err != nil {
		return false, err
	}
	if len(res.Events) > 0 {
		if r.cfg.Journal != nil {
			if err := r.cfg.Journal.Append(ctx, s.id, res.Events); err != nil {
				r.logger.Warn("journal append failed", "session_id", s.id, "error", err)
			}
		}
		s.events = append(s.events, res.Events...)
		r.logger.Debug("drained events",
			"session_id", s.id,
			"batch", len(res.Events),
			"total", len(s.events))
	}
	return res.Stop, nil
}

// observeOnce performs one atomic observation and persists a snapshot when
// the stage discriminant moved. A decreasing discriminant is a transition
// like any other; the snapshot for that index is overwritten.
func (r *Recorder) observeOnce(ctx context.Context, page browser.Page, s *liveSession) {
	var obs observation
	if err := page.Eval(ctx, s.observeJS, &obs); err != nil {
		r.logger.Warn("stage observation failed", "session_id", s.id, "error", err)
		return
	}
	if obs.Stage == nil {
		// Discriminant not readable yet; the target is still booting.
		return
	}
	cur := int(*obs.Stage)
	if float64(cur) != *obs.Stage {
		r.logger.Warn("stage discriminant is not an integer",
			"session_id", s.id,
			"value", *obs.Stage)
		return
	}
	if s.lastStage != nil && cur == *s.lastStage {
		return
	}
	if s.lastStage != nil && cur < *s.lastStage {
		r.logger.Warn("stage moved backwards, overwriting snapshot",
			"session_id", s.id,
			"from", *s.lastStage,
			"to", cur)
	}

	markup := ""
	if obs.Markup != nil {
		markup = *obs.Markup
	} else {
		r.logger.Warn("render region not found", "session_id", s.id, "stage", cur)
	}
	snap := &session.Snapshot{
		Stage:      cur,
		Variables:  obs.Vars,
		Markup:     markup,
		CapturedAt: r.now().Sub(s.start).Seconds(),
	}
	if err := r.cfg.Snapshots.Put(s.id, snap); err != nil {
		// Not updating lastStage means the next tick retries this index.
		r.logger.Warn("snapshot persist failed",
			"session_id", s.id,
			"stage", cur,
			"error", err)
		return
	}

	if s.lastStage == nil {
		r.logger.Info("initial stage captured", "session_id", s.id, "stage", cur)
	} else {
		r.logger.Info("stage transition captured",
			"session_id", s.id,
			"from", *s.lastStage,
			"to", cur,
			"captured_at", snap.CapturedAt)
	}
	s.lastStage = &cur
	s.sawStage(cur)
}

// flush drains whatever the page still buffers. The session context may be
// cancelled already, so the drain gets its own deadline.
func (r *Recorder) flush(page browser.Page, s *liveSession) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if _, err := r.drainOnce(ctx, page, s); err != nil {
		r.logger.Warn("final drain failed", "session_id", s.id, "error", err)
	}
}

func (r *Recorder) save(s *liveSession, reason StopReason) (*Result, error) {
	rec := &session.Recording{
		SessionID: s.id,
		StartedAt: s.start.UTC(),
		Source:    s.url,
		Duration:  r.now().Sub(s.start).Seconds(),
		Events:    s.events,
	}
	if err := r.cfg.Recordings.Persist(rec); err != nil {
		return nil, fmt.Errorf("recorder: persist recording %s: %w", s.id, err)
	}
	if r.cfg.Journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := r.cfg.Journal.Clear(ctx, s.id); err != nil {
			r.logger.Warn("journal clear failed", "session_id", s.id, "error", err)
		}
		cancel()
	}

	sort.Ints(s.stages)
	counts := rec.CountByKind()
	r.logger.Info("recording saved",
		"session_id", s.id,
		"events", len(rec.Events),
		"clicks", counts[session.KindClick],
		"scrolls", counts[session.KindScroll],
		"keys", counts[session.KindKey],
		"moves", counts[session.KindMove],
		"stages", s.stages,
		"duration_seconds", rec.Duration,
		"reason", string(reason))

	return &Result{
		SessionID: s.id,
		Events:    len(rec.Events),
		Stages:    s.stages,
		Duration:  rec.Duration,
		Reason:    reason,
	}, nil
}
