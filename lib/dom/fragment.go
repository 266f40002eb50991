package dom

import (
	"bytes"
	"io"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Fragment is an ordered list of detached top-level nodes, the equivalent of
// a document fragment.
type Fragment struct {
	nodes []*html.Node
}

// NewFragment wraps nodes, which must already be detached from any parent.
func NewFragment(nodes ...*html.Node) *Fragment {
	return &Fragment{nodes: nodes}
}

// ContentOf returns a deep copy of the children of tmpl as a fragment.
// tmpl itself is left untouched.
func ContentOf(tmpl *html.Node) *Fragment {
	f := &Fragment{}
	for ch := tmpl.FirstChild; ch != nil; ch = ch.NextSibling {
		f.nodes = append(f.nodes, Clone(ch))
	}
	return f
}

// Nodes returns the top-level nodes. The slice must not be modified.
func (f *Fragment) Nodes() []*html.Node {
	return f.nodes
}

// Len returns the number of top-level nodes.
func (f *Fragment) Len() int {
	return len(f.nodes)
}

// Size returns the number of nodes in the whole fragment tree.
func (f *Fragment) Size() int {
	total := 0
	for _, n := range f.nodes {
		total += Count(n)
	}
	return total
}

// Clone returns a deep copy of f.
func (f *Fragment) Clone() *Fragment {
	c := &Fragment{nodes: make([]*html.Node, len(f.nodes))}
	for i, n := range f.nodes {
		c.nodes[i] = Clone(n)
	}
	return c
}

// Append moves the nodes of other to the end of f. other is left empty.
func (f *Fragment) Append(other *Fragment) {
	f.nodes = append(f.nodes, other.nodes...)
	other.nodes = nil
}

// Remove detaches n from f, whether it is a top-level node or a descendant.
func (f *Fragment) Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
		return
	}
	for i, top := range f.nodes {
		if top == n {
			f.nodes = append(f.nodes[:i], f.nodes[i+1:]...)
			return
		}
	}
}

// QueryAll returns every node in f matching m in document order. Like a
// query on template content, it does not look inside nested <template>
// elements; the template element itself can still match.
func (f *Fragment) QueryAll(m cascadia.Matcher) []*html.Node {
	var out []*html.Node
	for _, n := range f.nodes {
		walkInert(n, func(n *html.Node) bool {
			if m.Match(n) {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

// Query returns the first node in f matching selector, or nil. Nested
// template content is skipped as in QueryAll.
func (f *Fragment) Query(selector string) (*html.Node, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return nil, err
	}
	var found *html.Node
	for _, n := range f.nodes {
		walkInert(n, func(n *html.Node) bool {
			if sel.Match(n) {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// walkInert visits n and its descendants in document order, without
// entering the children of template elements. It stops when fn returns
// false and reports whether the walk ran to completion.
func walkInert(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	if IsElement(n, "template") {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkInert(c, fn) {
			return false
		}
	}
	return true
}

// Render writes the fragment to w.
func (f *Fragment) Render(w io.Writer) error {
	return RenderNodes(w, f.nodes)
}

// String renders the fragment to a string.
func (f *Fragment) String() string {
	var buf bytes.Buffer
	_ = f.Render(&buf)
	return buf.String()
}

// Root is an isolated render root. Content is appended to it at most once
// for its whole lifetime.
type Root struct {
	mu       sync.RWMutex
	content  *Fragment
	appended bool
}

// NewRoot creates an empty root.
func NewRoot() *Root {
	return &Root{content: &Fragment{}}
}

// AppendOnce moves f into the root. It returns false, leaving the root
// unchanged, if content was appended before.
func (r *Root) AppendOnce(f *Fragment) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appended {
		return false
	}
	r.content.Append(f)
	r.appended = true
	return true
}

// Appended reports whether content has been appended.
func (r *Root) Appended() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.appended
}

// Size returns the number of nodes under the root.
func (r *Root) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content.Size()
}

// Content returns a deep copy of the root's content.
func (r *Root) Content() *Fragment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content.Clone()
}

// Query returns the first node under the root matching selector.
func (r *Root) Query(selector string) (*html.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content.Query(selector)
}

// Render writes the root's content to w.
func (r *Root) Render(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content.Render(w)
}

// String renders the root's content to a string.
func (r *Root) String() string {
	var buf bytes.Buffer
	_ = r.Render(&buf)
	return buf.String()
}
