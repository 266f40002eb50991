package cdefine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Behavior is one piece of component logic. It receives the instance it runs
// for explicitly; no reference to the instance is captured when the
// template is compiled.
type Behavior func(ctx context.Context, self *Instance) error

// Pending is the eventual outcome of a behavior unit. It yields exactly one
// value once the unit settles.
type Pending <-chan error

// Settled returns a Pending that has already settled with err.
func Settled(err error) Pending {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// Await blocks until p settles or ctx is done.
func Await(ctx context.Context, p Pending) error {
	select {
	case err := <-p:
		return err
	default:
	}
	select {
	case err := <-p:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unit is a behavior extracted from one script block of a template. Units
// are compared by identity: composing templates that share an ancestor
// keeps a single copy of the ancestor's units.
type Unit struct {
	// Source is the script body the unit was compiled from.
	Source string
	// Async marks a unit compiled from a module script. Its result is
	// awaited before the next unit of the same instance starts.
	Async bool

	fn Behavior
}

// NewUnit wraps fn as a behavior unit.
func NewUnit(source string, async bool, fn Behavior) *Unit {
	return &Unit{Source: source, Async: async, fn: fn}
}

// Invoke starts the unit for self. Synchronous units run to completion
// before Invoke returns; asynchronous units run on their own goroutine.
func (u *Unit) Invoke(ctx context.Context, self *Instance) Pending {
	if !u.Async {
		return Settled(u.fn(ctx, self))
	}
	ch := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fmt.Errorf("cdefine: async behavior panicked: %v", r)
			}
		}()
		ch <- u.fn(ctx, self)
	}()
	return ch
}

// ScriptRef identifies a script block handed to a ScriptEngine.
type ScriptRef struct {
	Template string // definition name or template reference
	Index    int    // position among the template's extracted scripts
	Type     string // declared type, lowercased; "" when unset
	Body     string
}

// Filename is used in diagnostics.
func (ref ScriptRef) Filename() string {
	name := ref.Template
	if name == "" {
		name = "template"
	}
	return fmt.Sprintf("%s/script[%d]", name, ref.Index)
}

// ScriptEngine turns a template's script block into a Behavior. It runs once
// per script when the template is compiled, never per instance.
type ScriptEngine interface {
	CompileScript(ref ScriptRef) (Behavior, error)
}

// ScriptEngineFunc adapts a function to ScriptEngine.
type ScriptEngineFunc func(ref ScriptRef) (Behavior, error)

// CompileScript calls f(ref).
func (f ScriptEngineFunc) CompileScript(ref ScriptRef) (Behavior, error) {
	return f(ref)
}

// Catalog holds Go behaviors that scripts refer to by name.
type Catalog struct {
	mu        sync.RWMutex
	behaviors map[string]Behavior
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{behaviors: make(map[string]Behavior)}
}

// Register adds fn under name. Panics on an empty name, a nil fn or a
// name registered twice.
func (c *Catalog) Register(name string, fn Behavior) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		panic("cdefine: behavior needs a name and a function")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.behaviors[name]; exists {
		panic(fmt.Sprintf("cdefine: behavior %q registered twice", name))
	}
	c.behaviors[name] = fn
}

// Lookup returns the behavior registered under name.
func (c *Catalog) Lookup(name string) (Behavior, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.behaviors[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.behaviors))
}

// NewScriptEngine returns the default engine. A script whose trimmed body is
// a name in catalog runs that Go behavior; any other body is compiled as a
// sandboxed HCL script (see CompileHCL).
func NewScriptEngine(catalog *Catalog) ScriptEngine {
	return ScriptEngineFunc(func(ref ScriptRef) (Behavior, error) {
		if catalog != nil {
			if fn, ok := catalog.Lookup(strings.TrimSpace(ref.Body)); ok {
				return fn, nil
			}
		}
		return CompileHCL(ref)
	})
}
