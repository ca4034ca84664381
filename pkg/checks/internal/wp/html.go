package wp

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse parses an HTML document. The tokenizer recovers from malformed
// markup, so a nil result only happens on a read error.
func Parse(body []byte) *html.Node {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	return doc
}

// Find returns the first element in document order matching pred.
func Find(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	for c := range n.Descendants() {
		if c.Type == html.ElementNode && pred(c) {
			return c
		}
	}
	return nil
}

// FindAll returns every element matching pred in document order.
func FindAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	if n == nil {
		return nil
	}
	var out []*html.Node
	for c := range n.Descendants() {
		if c.Type == html.ElementNode && pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// Tag matches elements by atom.
func Tag(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// Classes returns the element's class list.
func Classes(n *html.Node) []string {
	v, _ := Attr(n, "class")
	return strings.Fields(v)
}

// HasClassContaining reports whether any class contains one of the
// substrings.
func HasClassContaining(n *html.Node, subs ...string) bool {
	for _, c := range Classes(n) {
		for _, s := range subs {
			if strings.Contains(c, s) {
				return true
			}
		}
	}
	return false
}

// Text returns the concatenated, space-trimmed text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	for c := range n.Descendants() {
		if c.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(c.Data))
		}
	}
	return b.String()
}

// MetaContent returns the content of <meta name="name">.
func MetaContent(doc *html.Node, name string) (string, bool) {
	m := Find(doc, func(n *html.Node) bool {
		if n.DataAtom != atom.Meta {
			return false
		}
		v, _ := Attr(n, "name")
		return strings.EqualFold(v, name)
	})
	if m == nil {
		return "", false
	}
	return Attr(m, "content")
}
