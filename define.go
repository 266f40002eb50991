package cdefine

import (
	"context"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/cdefine/lib/dom"
)

const (
	// DefineTag declares a component in markup:
	//
	//	<c-define name="user-card" extend="base-card">
	//	  <template observe:name>…</template>
	//	</c-define>
	DefineTag = "c-define"

	// DynamicTag is the element of instances created from a template
	// referenced by src rather than by a defined name:
	//
	//	<x-is src="#card"></x-is>
	DynamicTag = "x-is"
)

// DefineOptions configures a definition.
type DefineOptions struct {
	// ObservedAttributes lists the attributes whose changes raise
	// attributeChanged. When nil it is derived from the template's
	// observe:<name> attributes.
	ObservedAttributes []string

	// FormAssociated gives every instance an Internals for form
	// participation.
	FormAssociated bool

	// Hooks lets instances override the attributeChanged, disconnected
	// and adopted notifications through SetHook.
	Hooks bool
}

// Definition is a registered component: a name bound to an immutable
// Compiled template and a state bag shared by all of its instances.
type Definition struct {
	name           string
	src            string // set for dynamic definitions
	compiled       *Compiled
	shared         *State
	observed       []string
	formAssociated bool
	hooks          bool
	registry       *Registry
}

// Name returns the component name.
func (d *Definition) Name() string {
	return d.name
}

// Compiled returns the compiled template instances are built from.
func (d *Definition) Compiled() *Compiled {
	return d.compiled
}

// Shared returns the state bag shared by every instance of the definition.
func (d *Definition) Shared() *State {
	return d.shared
}

// ObservedAttributes returns the watched attribute names.
func (d *Definition) ObservedAttributes() []string {
	return slices.Clone(d.observed)
}

// Observes reports whether changes to attribute name are watched.
func (d *Definition) Observes(name string) bool {
	return slices.Contains(d.observed, name)
}

// FormAssociated reports whether instances participate in forms.
func (d *Definition) FormAssociated() bool {
	return d.formAssociated
}

// Registry returns the registry the definition belongs to.
func (d *Definition) Registry() *Registry {
	return d.registry
}

// Define registers compiled under name. The name is lowercased. The shared
// state bag for the name is created on first use and never reset, and the
// compiled template becomes available to templates that extend the name.
func (reg *Registry) Define(name string, compiled *Compiled, opts DefineOptions) (*Definition, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, configError("", ErrMissingName)
	}
	if compiled == nil {
		return nil, configError(name, ErrMissingTemplate)
	}

	observed := opts.ObservedAttributes
	if observed == nil {
		observed = compiled.ObservedAttributes()
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.defs[name]; exists {
		return nil, duplicateError(name)
	}

	def := &Definition{
		name:           name,
		compiled:       compiled,
		shared:         reg.sharedLocked(name),
		observed:       slices.Clone(observed),
		formAssociated: opts.FormAssociated,
		hooks:          opts.Hooks,
		registry:       reg,
	}
	reg.defs[name] = def
	reg.named[name] = compiled
	delete(reg.pending, name)
	delete(reg.failed, name)
	reg.settleLocked(name)
	reg.metrics.defined()

	reg.logger.Debug("defined component",
		"name", name,
		"observed", def.observed,
		"behaviors", len(compiled.behaviors),
		"formAssociated", def.formAssociated)
	return def, nil
}

// DefineElement defines the component declared by a c-define element. The
// element's name attribute names the component and its first element child
// must be the <template>. Extend targets listed on the element come before
// those listed on the template. A form-associated attribute opts into form
// participation; an observed attribute ("a, b") overrides the observe:
// derived list. Hooks are always enabled for markup definitions.
func (reg *Registry) DefineElement(ctx context.Context, el *html.Node) (*Definition, error) {
	name := ""
	if v, ok := dom.Attr(el, "name"); ok {
		name = normalizeName(v)
	}
	if name == "" {
		return nil, configError("", ErrMissingName)
	}

	var tmpl *html.Node
	if kids := dom.Children(el); len(kids) > 0 && dom.IsElement(kids[0], "template") {
		tmpl = kids[0]
	}
	if tmpl == nil {
		err := configError(name, ErrMissingTemplate)
		reg.fail(name, err)
		return nil, err
	}

	var extra []string
	if v, ok := dom.Attr(el, ExtendAttr); ok {
		extra = splitList(v)
	}

	compiled, err := reg.compiler.compile(ctx, tmpl, name, name, extra, nil)
	if err != nil {
		reg.fail(name, err)
		return nil, err
	}

	opts := DefineOptions{Hooks: true}
	if _, ok := dom.Attr(el, "form-associated"); ok {
		opts.FormAssociated = true
	}
	if v, ok := dom.Attr(el, "observed"); ok {
		opts.ObservedAttributes = splitList(v)
	}

	def, err := reg.Define(name, compiled, opts)
	if err != nil {
		reg.fail(name, err)
		return nil, err
	}
	return def, nil
}

// DefineDocument defines every c-define element of doc. All names are
// announced first and the definitions run concurrently, so a definition may
// extend one that appears later in the document. It returns the first
// error; definitions that succeeded stay registered.
func (reg *Registry) DefineDocument(ctx context.Context, doc *html.Node) error {
	reg.mu.Lock()
	if reg.opts.Document == nil {
		reg.opts.Document = doc
	}
	reg.mu.Unlock()

	els := definitionElements(doc)
	names := make([]string, 0, len(els))
	for _, el := range els {
		if v, ok := dom.Attr(el, "name"); ok {
			names = append(names, v)
		}
	}
	reg.announce(names...)

	g, gctx := errgroup.WithContext(ctx)
	for _, el := range els {
		g.Go(func() error {
			_, err := reg.DefineElement(gctx, el)
			return err
		})
	}
	return g.Wait()
}

// Dynamic returns an anonymous definition for the template src refers to,
// either a selector into the registry's document or a defined name. It is
// not registered under any name; its instances render as DynamicTag.
func (reg *Registry) Dynamic(ctx context.Context, src string) (*Definition, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, configError(DynamicTag, ErrMissingTemplate)
	}

	var compiled *Compiled
	if isSelector(src) {
		tmpl, err := reg.Select(src)
		if err != nil {
			return nil, err
		}
		if compiled, err = reg.compiler.compile(ctx, tmpl, "", src, nil, nil); err != nil {
			return nil, err
		}
	} else {
		var err error
		if compiled, err = reg.Await(ctx, "", src); err != nil {
			return nil, err
		}
	}

	reg.mu.Lock()
	shared := reg.sharedLocked(DynamicTag + " " + src)
	reg.mu.Unlock()

	return &Definition{
		name:     DynamicTag,
		src:      src,
		compiled: compiled,
		shared:   shared,
		observed: compiled.ObservedAttributes(),
		hooks:    true,
		registry: reg,
	}, nil
}

func (reg *Registry) sharedLocked(key string) *State {
	s, ok := reg.shared[key]
	if !ok {
		s = NewState()
		reg.shared[key] = s
	}
	return s
}

// definitionElements returns the c-define elements of doc that are not
// inside template content.
func definitionElements(doc *html.Node) []*html.Node {
	all, _ := dom.QueryAll(doc, DefineTag)
	out := all[:0]
	for _, el := range all {
		if !insideTemplate(el) {
			out = append(out, el)
		}
	}
	return out
}

func insideTemplate(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if dom.IsElement(p, "template") {
			return true
		}
	}
	return false
}
