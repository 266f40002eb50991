// Package dom provides the small slice of a document tree that the component
// layer needs on top of golang.org/x/net/html: deep cloning, detached
// fragments, selector queries and an append-once isolated render root.
package dom

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoTemplate is returned by ParseTemplate when the input holds no
// <template> element.
var ErrNoTemplate = errors.New("dom: no template element")

// Clone returns a detached deep copy of n.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(Clone(ch))
	}
	return c
}

// Parse parses a full HTML document.
func Parse(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

// ParseString parses a full HTML document from s.
func ParseString(s string) (*html.Node, error) {
	return html.Parse(strings.NewReader(s))
}

// ParseFragment parses s as body content and returns the top-level nodes.
func ParseFragment(s string) (*Fragment, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return nil, err
	}
	return NewFragment(nodes...), nil
}

// ParseTemplate parses s and returns its first <template> element.
// The returned node is detached from the parse tree.
func ParseTemplate(s string) (*html.Node, error) {
	frag, err := ParseFragment(s)
	if err != nil {
		return nil, err
	}
	for _, n := range frag.Nodes() {
		if IsElement(n, "template") {
			return n, nil
		}
	}
	return nil, ErrNoTemplate
}

// IsElement reports whether n is an element with the given tag name.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// TextContent concatenates the text of every text node under n.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		sb.WriteString(TextContent(ch))
	}
	return sb.String()
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode {
			out = append(out, ch)
		}
	}
	return out
}

// Count returns the number of nodes in the subtree rooted at n, n included.
func Count(n *html.Node) int {
	total := 1
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		total += Count(ch)
	}
	return total
}

// Query returns the first node under root matching selector, or nil.
func Query(root *html.Node, selector string) (*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	return sel.MatchFirst(root), nil
}

// QueryAll returns every node under root matching selector in document order.
func QueryAll(root *html.Node, selector string) ([]*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	return sel.MatchAll(root), nil
}

// RenderNodes writes nodes to w in order.
func RenderNodes(w io.Writer, nodes []*html.Node) error {
	for _, n := range nodes {
		if err := html.Render(w, n); err != nil {
			return err
		}
	}
	return nil
}

// String renders n to a string.
func String(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}
