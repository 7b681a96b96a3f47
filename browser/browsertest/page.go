// Package browsertest provides an in-memory Page implementation for unit
// tests of the engines that dispatch against a page. Script evaluation is
// simulated with registered responders matched by substring, so tests stay
// decoupled from exact script text.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Dispatch is one synthetic input applied to the fake page.
type Dispatch struct {
	Kind     string // click, click_at, scroll, key, move
	Selector string
	X, Y     float64
	Key      string
}

type responder struct {
	match string
	fn    func(args []any) (any, error)
}

// Page is a fake driver page. The zero value is not usable; call New.
type Page struct {
	mu          sync.Mutex
	navigated   []string
	initScripts []string
	evalLog     []string
	dispatches  []Dispatch
	vars        map[string]any
	responders  []responder

	// FailSelectors makes DispatchClick fail for these selectors, forcing
	// the coordinate fallback path.
	FailSelectors map[string]bool
	// FailVars makes SetVariable fail for these names.
	FailVars map[string]error
	// MarkupBySelector backs the Markup method.
	MarkupBySelector map[string]string

	closed bool
}

// New returns an empty fake page.
func New() *Page {
	return &Page{
		vars:             make(map[string]any),
		FailSelectors:    make(map[string]bool),
		FailVars:         make(map[string]error),
		MarkupBySelector: make(map[string]string),
	}
}

// Respond registers a responder for Eval calls whose script contains match.
// Responders are consulted in registration order; the first match wins.
func (p *Page) Respond(match string, fn func(args []any) (any, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responders = append(p.responders, responder{match: match, fn: fn})
}

// RespondValue registers a responder that always returns v.
func (p *Page) RespondValue(match string, v any) {
	p.Respond(match, func([]any) (any, error) { return v, nil })
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *Page) Eval(ctx context.Context, js string, out any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.evalLog = append(p.evalLog, js)
	var fn func([]any) (any, error)
	for _, r := range p.responders {
		if strings.Contains(js, r.match) {
			fn = r.fn
			break
		}
	}
	p.mu.Unlock()

	if fn == nil {
		return nil
	}
	v, err := fn(args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("browsertest: marshal responder value: %w", err)
	}
	return json.Unmarshal(data, out)
}

func (p *Page) EvalOnNewDocument(js string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initScripts = append(p.initScripts, js)
	return nil
}

func (p *Page) SetVariable(_ context.Context, name string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FailVars[name]; err != nil {
		return err
	}
	p.vars[name] = value
	return nil
}

func (p *Page) DispatchClick(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FailSelectors[selector] {
		return fmt.Errorf("browsertest: no element matches %q", selector)
	}
	p.dispatches = append(p.dispatches, Dispatch{Kind: "click", Selector: selector})
	return nil
}

func (p *Page) DispatchClickAt(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, Dispatch{Kind: "click_at", X: x, Y: y})
	return nil
}

func (p *Page) DispatchScroll(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, Dispatch{Kind: "scroll", X: x, Y: y})
	return nil
}

func (p *Page) DispatchKey(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, Dispatch{Kind: "key", Key: key})
	return nil
}

func (p *Page) DispatchMouseMove(_ context.Context, x, y float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, Dispatch{Kind: "move", X: x, Y: y})
	return nil
}

func (p *Page) Markup(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.MarkupBySelector[selector]
	if !ok {
		return "", fmt.Errorf("browsertest: no element matches %q", selector)
	}
	return m, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Dispatches returns a copy of the dispatch log in order.
func (p *Page) Dispatches() []Dispatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Dispatch, len(p.dispatches))
	copy(out, p.dispatches)
	return out
}

// Vars returns a copy of the variables set via SetVariable.
func (p *Page) Vars() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]any, len(p.vars))
	for k, v := range p.vars {
		out[k] = v
	}
	return out
}

// InitScripts returns the scripts registered via EvalOnNewDocument.
func (p *Page) InitScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.initScripts))
	copy(out, p.initScripts)
	return out
}

// Navigated returns the navigation history.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.navigated))
	copy(out, p.navigated)
	return out
}

// EvalLog returns the scripts evaluated so far.
func (p *Page) EvalLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.evalLog))
	copy(out, p.evalLog)
	return out
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
