package browser

import (
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"
)

// namedKeys maps the key values the capture script reports for
// non-printable keys to rod's key codes. Values not listed here and longer
// than one rune have no mapping and surface as a dispatch failure.
var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
}

// mapKey converts a recorded key value to a rod key. Printable keys arrive
// as a single rune ("a", "5", " ") and map directly; special keys arrive
// under their KeyboardEvent.key name.
func mapKey(key string) (input.Key, bool) {
	if k, ok := namedKeys[key]; ok {
		return k, true
	}
	if utf8.RuneCountInString(key) == 1 {
		r, _ := utf8.DecodeRuneInString(key)
		return input.Key(r), true
	}
	return 0, false
}
