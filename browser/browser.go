// Package browser manages the Chrome lifecycle via Rod and wraps pages in
// the driver interface the recording, replay and stage-isolation engines
// dispatch against. The engines only ever see the Page interface; swapping
// the automation backend (or faking it in tests) swaps this package's
// implementation, nothing else.
package browser

import "context"

// Page is the abstract page-context capability the engines consume: navigate
// to a document, evaluate script, set script-visible variables, dispatch
// synthetic input, and read back a subtree's markup.
//
// Eval evaluates a JS function literal with the given arguments and decodes
// the JSON-serialised result into out when out is non-nil. All dispatch
// methods bound their own latency via ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, js string, out any, args ...any) error
	EvalOnNewDocument(js string) error
	SetVariable(ctx context.Context, name string, value any) error
	DispatchClick(ctx context.Context, selector string) error
	DispatchClickAt(ctx context.Context, x, y float64) error
	DispatchScroll(ctx context.Context, x, y float64) error
	DispatchKey(ctx context.Context, key string) error
	DispatchMouseMove(ctx context.Context, x, y float64) error
	Markup(ctx context.Context, selector string) (string, error)
	Close() error
}
