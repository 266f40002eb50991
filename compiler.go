package cdefine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/pthm/cdefine/lib/dom"
)

// ExtendAttr lists, comma separated, the templates merged before a
// template: extend="base, #card".
const ExtendAttr = "extend"

var scriptSelector = cascadia.MustCompile("script:not([src])")

// Resolver locates the templates an extend list refers to.
type Resolver interface {
	// Select returns the <template> element matching selector.
	Select(selector string) (*html.Node, error)
	// Await returns the compiled template defined under name, waiting while
	// that definition is still in progress. owner is the definition being
	// compiled, or "" when there is none.
	Await(ctx context.Context, owner, name string) (*Compiled, error)
}

// Compiler turns templates into Compiled values. Results are cached by
// template identity: a template is scanned for scripts at most once, and
// every later Compile of it returns the same *Compiled.
type Compiler struct {
	mu       sync.Mutex
	cache    map[*html.Node]*Compiled
	engine   ScriptEngine
	resolver Resolver
	logger   *slog.Logger
	metrics  *Metrics
}

// NewCompiler creates a compiler. A nil engine uses NewScriptEngine(nil);
// a nil resolver makes every extend target unresolvable; a nil logger
// discards output.
func NewCompiler(engine ScriptEngine, resolver Resolver, logger *slog.Logger) *Compiler {
	if engine == nil {
		engine = NewScriptEngine(nil)
	}
	return &Compiler{
		cache:    make(map[*html.Node]*Compiled),
		engine:   engine,
		resolver: resolver,
		logger:   orDiscard(logger),
	}
}

// Compile returns the compiled form of tmpl, a <template> element. tmpl is
// never modified. A failed compile leaves the cache untouched.
func (c *Compiler) Compile(ctx context.Context, tmpl *html.Node) (*Compiled, error) {
	return c.compile(ctx, tmpl, "", "", nil, nil)
}

// Cached returns the cached result for tmpl without compiling.
func (c *Compiler) Cached(tmpl *html.Node) (*Compiled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	compiled, ok := c.cache[tmpl]
	return compiled, ok
}

// compile does the work of Compile. owner is the definition the template
// belongs to, label names the template in diagnostics, extra are extend
// targets declared outside the template, visiting guards selector cycles.
func (c *Compiler) compile(ctx context.Context, tmpl *html.Node, owner, label string, extra []string, visiting map[*html.Node]bool) (*Compiled, error) {
	if label == "" {
		label = templateLabel(tmpl, owner)
	}
	if !dom.IsElement(tmpl, "template") {
		return nil, configError(label, ErrMissingTemplate)
	}
	if compiled, ok := c.Cached(tmpl); ok {
		c.metrics.hit()
		return compiled, nil
	}
	if visiting[tmpl] {
		return nil, configError(label, fmt.Errorf("%w: %s extends itself", ErrCycle, label))
	}
	if visiting == nil {
		visiting = make(map[*html.Node]bool)
	}
	visiting[tmpl] = true
	defer delete(visiting, tmpl)

	c.metrics.miss()
	compiled, err := c.extract(label, tmpl)
	if err != nil {
		return nil, err
	}

	refs := extra
	if v, ok := dom.Attr(tmpl, ExtendAttr); ok {
		refs = append(refs[:len(refs):len(refs)], splitList(v)...)
	}
	if len(refs) > 0 {
		parts := make([]*Compiled, 0, len(refs)+1)
		for _, ref := range refs {
			part, err := c.resolve(ctx, owner, ref, visiting)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
		}
		compiled = Combine(append(parts, compiled)...)
	}

	compiled = c.store(tmpl, compiled)
	c.logger.Debug("compiled template",
		"template", label,
		"behaviors", len(compiled.behaviors),
		"extends", refs)
	return compiled, nil
}

// extract clones the template content, pulls the behavior scripts out of
// the clone and snapshots the template's own attributes.
func (c *Compiler) extract(label string, tmpl *html.Node) (*Compiled, error) {
	out := newCompiled()
	frag := dom.ContentOf(tmpl)

	index := 0
	for _, script := range frag.QueryAll(scriptSelector) {
		typ, _ := dom.Attr(script, "type")
		typ = strings.ToLower(strings.TrimSpace(typ))
		if !isBehaviorType(typ) {
			continue
		}
		body := dom.TextContent(script)
		fn, err := c.engine.CompileScript(ScriptRef{
			Template: label,
			Index:    index,
			Type:     typ,
			Body:     body,
		})
		if err != nil {
			if !errors.Is(err, ErrInvalidScript) {
				err = fmt.Errorf("%w: %w", ErrInvalidScript, err)
			}
			return nil, configError(label, err)
		}
		out.behaviors = append(out.behaviors, NewUnit(body, typ == "module", fn))
		frag.Remove(script)
		index++
	}
	out.fragment = frag

	for _, a := range tmpl.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		if _, ok := out.attrs[key]; !ok {
			out.names = append(out.names, key)
		}
		out.attrs[key] = append(out.attrs[key], a.Val)
	}
	return out, nil
}

func (c *Compiler) resolve(ctx context.Context, owner, ref string, visiting map[*html.Node]bool) (*Compiled, error) {
	if isSelector(ref) {
		if c.resolver == nil {
			return nil, notFoundError(ref, ErrMissingTemplate)
		}
		tmpl, err := c.resolver.Select(ref)
		if err != nil {
			return nil, err
		}
		return c.compile(ctx, tmpl, owner, ref, nil, visiting)
	}
	if c.resolver == nil {
		return nil, notFoundError(ref, ErrNotFound)
	}
	return c.resolver.Await(ctx, owner, ref)
}

// store caches compiled under tmpl unless another compile got there first,
// in which case the earlier value wins and is returned.
func (c *Compiler) store(tmpl *html.Node, compiled *Compiled) *Compiled {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.cache[tmpl]; ok {
		return existing
	}
	c.cache[tmpl] = compiled
	return compiled
}

// isBehaviorType reports whether a script of the given (lowercased) type is
// extracted as a behavior unit. Other types, such as JSON data blocks, stay
// in the fragment.
func isBehaviorType(typ string) bool {
	switch typ {
	case "", "text/javascript", "module":
		return true
	}
	return false
}

// isSelector tells selector references from definition names.
func isSelector(ref string) bool {
	return strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, ".") || strings.HasPrefix(ref, "[")
}

// splitList splits a comma separated attribute value, trimming whitespace
// and dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func templateLabel(tmpl *html.Node, owner string) string {
	if owner != "" {
		return owner
	}
	if tmpl != nil {
		if id, ok := dom.Attr(tmpl, "id"); ok && id != "" {
			return "#" + id
		}
	}
	return "template"
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
