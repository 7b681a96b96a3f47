// Package stageload reconstructs a captured application state inside a
// fresh page. Loading stage T consumes the snapshot of stage T-1, the
// terminal state from which the application's own entry point for T can
// resume: variables are injected into the page's execution context, the
// render region's markup is replaced wholesale, display bindings are
// refreshed, and the entry point is invoked so native transition logic takes
// over. Events are never replayed.
package stageload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hazyhaar/pagetape/browser"
	"github.com/hazyhaar/pagetape/store"
	"github.com/hazyhaar/pagetape/target"
)

// ErrInvalidStage reports a target stage below 1. Stage 0 is the
// application's own boot state; there is no predecessor snapshot to restore
// it from.
var ErrInvalidStage = errors.New("stageload: target stage must be at least 1")

// InjectionFailure is one variable that could not be set in the page.
type InjectionFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Result describes one stage restoration.
type Result struct {
	SessionID      string             `json:"session_id"`
	TargetStage    int                `json:"target_stage"`
	SnapshotStage  int                `json:"snapshot_stage"`
	Injected       int                `json:"injected"`
	Failed         []InjectionFailure `json:"failed,omitempty"`
	MarkupReplaced bool               `json:"markup_replaced"`
	EntryInvoked   bool               `json:"entry_invoked"`
	EntryCall      string             `json:"entry_call,omitempty"`
}

// Loader restores snapshots against pages.
type Loader struct {
	snapshots *store.Snapshots
	profile   *target.Profile
	logger    *slog.Logger
}

// New returns a Loader reading snapshots from the given store and driving
// restoration per the target profile.
func New(snapshots *store.Snapshots, profile *target.Profile, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{snapshots: snapshots, profile: profile, logger: logger}
}

const replaceMarkupScript = `(sel, html) => {
	const region = document.querySelector(sel);
	if (!region) return false;
	region.innerHTML = html;
	return true;
}`

const bindTextScript = `(sel, text) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.textContent = text;
	return true;
}`

// Load restores session's stage targetStage into page, which must already
// display a freshly navigated instance of the target application. The
// snapshot for targetStage-1 is resolved before the page is touched; its
// absence is surfaced as store.ErrNotFound with no side effects. Injection
// is attempt-all: failures are collected per variable and the entry point is
// still invoked.
func (l *Loader) Load(ctx context.Context, page browser.Page, sessionID string, targetStage int) (*Result, error) {
	if targetStage < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStage, targetStage)
	}
	if l.profile == nil {
		return nil, fmt.Errorf("stageload: target profile required")
	}

	snap, err := l.snapshots.Get(sessionID, targetStage-1)
	if err != nil {
		return nil, fmt.Errorf("stageload: snapshot %d of session %s: %w", targetStage-1, sessionID, err)
	}

	res := &Result{
		SessionID:     sessionID,
		TargetStage:   targetStage,
		SnapshotStage: snap.Stage,
	}
	l.logger.Info("restoring stage",
		"session_id", sessionID,
		"target_stage", targetStage,
		"snapshot_stage", snap.Stage,
		"variables", len(snap.Variables))

	// Inject variables in name order so failures report deterministically.
	names := make([]string, 0, len(snap.Variables))
	for name := range snap.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := page.SetVariable(ctx, name, snap.Variables[name]); err != nil {
			res.Failed = append(res.Failed, InjectionFailure{Name: name, Reason: err.Error()})
			l.logger.Warn("variable injection failed",
				"session_id", sessionID,
				"variable", name,
				"error", err)
			continue
		}
		res.Injected++
	}

	var replaced bool
	if err := page.Eval(ctx, replaceMarkupScript, &replaced, l.profile.RegionSelector, snap.Markup); err != nil {
		l.logger.Warn("markup replacement failed", "session_id", sessionID, "error", err)
	} else if !replaced {
		l.logger.Warn("render region not found",
			"session_id", sessionID,
			"selector", l.profile.RegionSelector)
	}
	res.MarkupReplaced = replaced

	for _, b := range l.profile.DisplayBindings {
		value, ok := snap.Variables[b.Variable]
		if !ok {
			continue
		}
		var bound bool
		if err := page.Eval(ctx, bindTextScript, &bound, b.Selector, fmt.Sprint(value)); err != nil || !bound {
			l.logger.Warn("display binding failed",
				"session_id", sessionID,
				"variable", b.Variable,
				"selector", b.Selector,
				"error", err)
		}
	}

	if call, ok := l.profile.EntryCall(targetStage); ok {
		res.EntryCall = call
		entry := fmt.Sprintf("() => { %s; return true; }", call)
		var invoked bool
		if err := page.Eval(ctx, entry, &invoked); err != nil {
			l.logger.Warn("entry point failed",
				"session_id", sessionID,
				"call", call,
				"error", err)
		} else {
			res.EntryInvoked = invoked
		}
	} else {
		l.logger.Warn("no entry point for stage; application logic not resumed",
			"session_id", sessionID,
			"target_stage", targetStage)
	}

	l.logger.Info("stage restored",
		"session_id", sessionID,
		"target_stage", targetStage,
		"injected", res.Injected,
		"failed", len(res.Failed),
		"markup_replaced", res.MarkupReplaced,
		"entry_invoked", res.EntryInvoked)
	return res, nil
}
