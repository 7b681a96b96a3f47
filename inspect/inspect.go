// Package inspect computes structural summaries of snapshot markup for
// stage listings and describe tooling: element counts, visible text volume,
// element ids, and a one-line excerpt.
package inspect

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const excerptLen = 80

// Summary describes the structure of one markup fragment.
type Summary struct {
	Nodes   int      `json:"nodes"`
	TextLen int      `json:"text_len"`
	IDs     []string `json:"ids,omitempty"`
	Excerpt string   `json:"excerpt,omitempty"`
}

// Summarize parses a markup fragment (a render region's innerHTML) and
// returns its structural statistics. Script and style subtrees are excluded
// from both counts and text.
func Summarize(markup string) (*Summary, error) {
	roots, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
	})
	if err != nil {
		return nil, fmt.Errorf("inspect: parse markup: %w", err)
	}

	s := &Summary{}
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
			s.Nodes++
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val != "" {
					s.IDs = append(s.IDs, a.Val)
				}
			}
		case html.TextNode:
			t := strings.TrimSpace(n.Data)
			if t != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, root := range roots {
		walk(root)
	}

	full := text.String()
	s.TextLen = len(full)
	s.Excerpt = excerpt(full)
	return s, nil
}

// excerpt returns the leading runes of text, truncated for one-line output.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLen {
		return text
	}
	return string(runes[:excerptLen]) + "..."
}
