package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resolveTimeout bounds how long a dispatch waits for a selector to resolve
// before the caller falls back to coordinates.
const resolveTimeout = 2 * time.Second

// navigateTimeout bounds navigation plus the load wait.
const navigateTimeout = 30 * time.Second

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Tab wraps a Rod page and implements the Page driver interface.
type Tab struct {
	page   *rod.Page
	logger *slog.Logger
}

// Navigate drives the page to url and waits for the load event. A load-wait
// timeout is logged, not fatal: pages that keep a connection open never
// settle and are still usable.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := t.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := t.page.Context(navCtx).WaitLoad(); err != nil {
		t.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Eval evaluates a JS function literal with args and decodes the result
// into out when out is non-nil.
func (t *Tab) Eval(ctx context.Context, js string, out any, args ...any) error {
	res, err := t.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("browser: eval: %w", err)
	}
	if out == nil {
		return nil
	}
	data, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("browser: eval result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("browser: decode eval result: %w", err)
	}
	return nil
}

// EvalOnNewDocument registers a script to run in every new document before
// any of the document's own scripts, so capture instrumentation observes
// the page from its first instant.
func (t *Tab) EvalOnNewDocument(js string) error {
	if _, err := t.page.EvalOnNewDocument(js); err != nil {
		return fmt.Errorf("browser: eval on new document: %w", err)
	}
	return nil
}

// SetVariable assigns value to a named binding in the page's global
// execution context. Plain assignment (not a window property write) so
// let/const module-level bindings rebind too.
func (t *Tab) SetVariable(ctx context.Context, name string, value any) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("browser: set variable: invalid identifier %q", name)
	}
	js := fmt.Sprintf(`(v) => { %s = v; return true; }`, name)
	if err := t.Eval(ctx, js, nil, value); err != nil {
		return fmt.Errorf("browser: set variable %s: %w", name, err)
	}
	return nil
}

// DispatchClick resolves selector and clicks it. The wait for the element
// is bounded; an unresolved selector returns an error so the caller can
// fall back to coordinates.
func (t *Tab) DispatchClick(ctx context.Context, selector string) error {
	elCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	el, err := t.page.Context(elCtx).Element(selector)
	if err != nil {
		return fmt.Errorf("browser: resolve %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

// DispatchClickAt clicks at viewport coordinates.
func (t *Tab) DispatchClickAt(ctx context.Context, x, y float64) error {
	page := t.page.Context(ctx)
	if err := page.Mouse.MoveTo(proto.NewPoint(x, y)); err != nil {
		return fmt.Errorf("browser: move to (%.0f,%.0f): %w", x, y, err)
	}
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click at (%.0f,%.0f): %w", x, y, err)
	}
	return nil
}

// DispatchScroll scrolls the document to the given offsets.
func (t *Tab) DispatchScroll(ctx context.Context, x, y float64) error {
	if err := t.Eval(ctx, `(x, y) => window.scrollTo(x, y)`, nil, x, y); err != nil {
		return fmt.Errorf("browser: scroll to (%.0f,%.0f): %w", x, y, err)
	}
	return nil
}

// DispatchKey presses a key by its recorded key value ("a", "Enter", ...).
func (t *Tab) DispatchKey(ctx context.Context, key string) error {
	k, ok := mapKey(key)
	if !ok {
		return fmt.Errorf("browser: key %q: no mapping", key)
	}
	if err := t.page.Context(ctx).Keyboard.Press(k); err != nil {
		return fmt.Errorf("browser: press %q: %w", key, err)
	}
	return nil
}

// DispatchMouseMove moves the pointer to viewport coordinates.
func (t *Tab) DispatchMouseMove(ctx context.Context, x, y float64) error {
	if err := t.page.Context(ctx).Mouse.MoveTo(proto.NewPoint(x, y)); err != nil {
		return fmt.Errorf("browser: move to (%.0f,%.0f): %w", x, y, err)
	}
	return nil
}

// Markup returns the inner HTML of the first element matching selector.
func (t *Tab) Markup(ctx context.Context, selector string) (string, error) {
	var markup *string
	js := `(sel) => { const el = document.querySelector(sel); return el ? el.innerHTML : null; }`
	if err := t.Eval(ctx, js, &markup, selector); err != nil {
		return "", err
	}
	if markup == nil {
		return "", fmt.Errorf("browser: markup: no element matches %q", selector)
	}
	return *markup, nil
}

// Close closes the page.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}
