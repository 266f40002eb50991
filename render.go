package cdefine

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/cdefine/lib/dom"
)

// ShadowRootMode is the mode written on declarative shadow roots.
const ShadowRootMode = "open"

// Render writes the instance as its host element with the render root as a
// declarative shadow root:
//
//	<greet-card name="x"><template shadowrootmode="open"><p>hi</p></template></greet-card>
func (inst *Instance) Render(w io.Writer) error {
	host := &html.Node{
		Type: html.ElementNode,
		Data: inst.Name(),
		Attr: inst.Attributes(),
	}
	host.AppendChild(inst.shadowTemplate())
	return html.Render(w, host)
}

// Component adapts the instance to templ.
func (inst *Instance) Component() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return inst.Render(w)
	})
}

func (inst *Instance) shadowTemplate() *html.Node {
	tmpl := &html.Node{
		Type:     html.ElementNode,
		Data:     "template",
		DataAtom: atom.Template,
		Attr:     []html.Attribute{{Key: "shadowrootmode", Val: ShadowRootMode}},
	}
	for _, n := range inst.root.Content().Nodes() {
		tmpl.AppendChild(n)
	}
	return tmpl
}

// Upgrade instantiates, in document order, every element of doc whose tag
// is a defined name or DynamicTag, connects it and inserts its shadow root
// as the element's first child. Template content and c-define elements are
// skipped, as are elements that already carry a declarative shadow root.
// The connected instances are returned; the caller disconnects them.
func (reg *Registry) Upgrade(ctx context.Context, doc *html.Node) ([]*Instance, error) {
	var hosts []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "template", n.Data == DefineTag:
				return
			case n.Data == DynamicTag:
				hosts = append(hosts, n)
			default:
				if _, ok := reg.Lookup(n.Data); ok {
					hosts = append(hosts, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var out []*Instance
	for _, host := range hosts {
		if hasShadowRoot(host) {
			continue
		}
		def, err := reg.hostDefinition(ctx, host)
		if err != nil {
			return out, err
		}
		inst := def.New(host.Attr...)
		if err := inst.Connect(ctx); err != nil {
			return append(out, inst), err
		}
		host.Attr = inst.Attributes()
		host.InsertBefore(inst.shadowTemplate(), host.FirstChild)
		out = append(out, inst)
	}
	return out, nil
}

func (reg *Registry) hostDefinition(ctx context.Context, host *html.Node) (*Definition, error) {
	if host.Data != DynamicTag {
		def, _ := reg.Lookup(host.Data)
		return def, nil
	}
	src, _ := dom.Attr(host, "src")
	def, err := reg.Dynamic(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("cdefine: %s src=%q: %w", DynamicTag, src, err)
	}
	return def, nil
}

func hasShadowRoot(n *html.Node) bool {
	c := n.FirstChild
	if !dom.IsElement(c, "template") {
		return false
	}
	_, ok := dom.Attr(c, "shadowrootmode")
	return ok
}

// StripDefinitions removes the c-define elements of doc that are outside
// template content.
func StripDefinitions(doc *html.Node) {
	for _, el := range definitionElements(doc) {
		if el.Parent != nil {
			el.Parent.RemoveChild(el)
		}
	}
}
