package browser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveURL turns a document reference into something Chrome will navigate
// to: anything without a scheme is a local file and becomes an absolute
// file:// URL, so "pagetape record page/index.html" works from any working
// directory. Real URLs, including already-resolved file:// sources, pass
// through untouched.
func ResolveURL(arg string) (string, error) {
	if strings.Contains(arg, "://") {
		return arg, nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("browser: resolve page path %q: %w", arg, err)
	}
	return "file://" + abs, nil
}
