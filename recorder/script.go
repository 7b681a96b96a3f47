package recorder

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/pagetape/session"
	"github.com/hazyhaar/pagetape/target"
)

//go:embed capture.js
var captureJS string

const moveThrottleToken = "__MOVE_THROTTLE_MS__"

// captureScript returns the in-page capture script with the mouse move
// throttle substituted in.
func captureScript(throttle time.Duration) string {
	return strings.ReplaceAll(captureJS, moveThrottleToken, strconv.FormatInt(throttle.Milliseconds(), 10))
}

// drainScript moves the buffered events out of the page in one evaluation
// and reports whether the save trigger fired. Splice empties the buffer and
// returns its prior contents, so an event is delivered exactly once.
const drainScript = `() => {
	const t = window.__pagetape;
	if (!t) {
		return { events: [], stop: false };
	}
	return { events: t.events.splice(0, t.events.length), stop: t.stop };
}`

// drainResult is the shape drainScript evaluates to.
type drainResult struct {
	Events []session.Event `json:"events"`
	Stop   bool            `json:"stop"`
}

// observation is the shape the generated observation script evaluates to.
// Stage and Markup are pointers so a page that has not booted yet yields
// nulls instead of zero values.
type observation struct {
	Stage  *float64       `json:"stage"`
	Vars   map[string]any `json:"vars"`
	Markup *string        `json:"markup"`
}

// buildObservationScript generates the single-evaluation observation of the
// target's state: the stage discriminant, every profiled variable that
// exists, and the render region's markup. Every read is guarded so partially
// initialized pages observe as null rather than throwing.
func buildObservationScript(p *target.Profile) string {
	var b strings.Builder
	b.WriteString("() => {\n")
	b.WriteString("\tconst out = { stage: null, vars: {}, markup: null };\n")
	fmt.Fprintf(&b, "\tif (typeof %s === 'number') out.stage = %s;\n", p.StageVariable, p.StageVariable)
	for _, v := range p.Variables {
		fmt.Fprintf(&b, "\tif (typeof %s !== 'undefined') out.vars[%q] = %s;\n", v, v, v)
	}
	fmt.Fprintf(&b, "\tconst region = document.querySelector(%q);\n", p.RegionSelector)
	b.WriteString("\tif (region) out.markup = region.innerHTML;\n")
	b.WriteString("\treturn out;\n")
	b.WriteString("}")
	return b.String()
}
