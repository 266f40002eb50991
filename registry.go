package cdefine

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/pthm/cdefine/lib/dom"
)

// Options configures a Registry.
type Options struct {
	// Key seals instance state tokens. Any length; keys that are not 32
	// bytes are hashed. When empty a random key is generated, so tokens
	// only open in the registry that sealed them.
	Key []byte

	// Sensitive encrypts state tokens instead of only signing them.
	Sensitive bool

	// Document is searched when a template is referenced by selector.
	// DefineDocument sets it when it is nil.
	Document *html.Node

	// WaitUndefined makes extend references to names that are neither
	// defined nor being defined wait (until the context is done) instead of
	// failing with ErrNotFound.
	WaitUndefined bool

	// Engine compiles script blocks. Defaults to NewScriptEngine over the
	// registry's behavior catalog.
	Engine ScriptEngine

	// Logger receives debug and warning output. Defaults to discarding.
	Logger *slog.Logger

	// Path is the URL prefix the handler serves instances under.
	// Defaults to DefaultPath.
	Path string
}

// DefaultPath is the URL prefix used when Options.Path is empty.
const DefaultPath = "/_c/"

// Registry is the process-scoped home of everything the component layer
// shares: the compiled-template caches, the definitions by name, the shared
// state bags, the instance registry and the behavior catalog. Registries are
// independent of each other.
type Registry struct {
	mu        sync.RWMutex
	opts      Options
	logger    *slog.Logger
	encoder   *Encoder
	compiler  *Compiler
	instances *Instances
	catalog   *Catalog
	metrics   *Metrics
	mux       *http.ServeMux

	defs    map[string]*Definition
	named   map[string]*Compiled
	shared  map[string]*State
	ready   map[string]chan struct{} // closed when a name settles
	pending map[string]bool          // names announced but not settled
	failed  map[string]error         // why a pending name did not get defined
	waits   map[string]map[string]bool

	// OnError is called when the HTTP handler fails to serve an instance.
	// Customize this to handle errors appropriately for your application.
	OnError func(http.ResponseWriter, *http.Request, error)
}

// NewRegistry creates a registry.
func NewRegistry(opts Options) *Registry {
	key := opts.Key
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("cdefine: failed to generate random key: %v", err))
		}
	}
	enc, err := NewEncoder(key)
	if err != nil {
		panic(fmt.Sprintf("cdefine: failed to create encoder: %v", err))
	}

	reg := &Registry{
		opts:      opts,
		logger:    orDiscard(opts.Logger),
		encoder:   enc,
		instances: NewInstances(),
		catalog:   NewCatalog(),
		metrics:   NewMetrics(),
		defs:      make(map[string]*Definition),
		named:     make(map[string]*Compiled),
		shared:    make(map[string]*State),
		ready:     make(map[string]chan struct{}),
		pending:   make(map[string]bool),
		failed:    make(map[string]error),
		waits:     make(map[string]map[string]bool),
	}
	reg.instances.metrics = reg.metrics

	engine := opts.Engine
	if engine == nil {
		engine = NewScriptEngine(reg.catalog)
	}
	reg.compiler = NewCompiler(engine, reg, reg.logger)
	reg.compiler.metrics = reg.metrics

	reg.mux = http.NewServeMux()
	reg.mux.HandleFunc("GET "+reg.Path()+"{name}", reg.serveInstance)

	reg.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		reg.logger.Warn("instance request failed", "path", r.URL.Path, "error", err)
		switch {
		case IsNotFound(err):
			http.Error(w, "Not found", http.StatusNotFound)
		case IsDecryptionError(err), IsInvalidToken(err):
			http.Error(w, "Bad request", http.StatusBadRequest)
		default:
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
	}

	return reg
}

// Behavior registers a Go behavior that template scripts can name.
// Register behaviors before compiling the templates that use them.
func (reg *Registry) Behavior(name string, fn Behavior) {
	reg.catalog.Register(name, fn)
}

// Compiler returns the registry's template compiler.
func (reg *Registry) Compiler() *Compiler {
	return reg.compiler
}

// Instances returns the instance registry.
func (reg *Registry) Instances() *Instances {
	return reg.instances
}

// Instance looks up a live instance by id.
func (reg *Registry) Instance(id string) (*Instance, bool) {
	return reg.instances.Lookup(id)
}

// Metrics returns the registry's counters.
func (reg *Registry) Metrics() *Metrics {
	return reg.metrics
}

// Encoder returns the state token encoder.
func (reg *Registry) Encoder() *Encoder {
	return reg.encoder
}

// Logger returns the registry's logger.
func (reg *Registry) Logger() *slog.Logger {
	return reg.logger
}

// SetDocument sets the document searched for selector references.
func (reg *Registry) SetDocument(doc *html.Node) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.opts.Document = doc
}

// Lookup returns the definition registered under name.
func (reg *Registry) Lookup(name string) (*Definition, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	def, ok := reg.defs[normalizeName(name)]
	return def, ok
}

// Names returns the defined names in sorted order.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return slices.Sorted(maps.Keys(reg.defs))
}

// Select implements Resolver. It finds the <template> matching selector in
// the registry's document.
func (reg *Registry) Select(selector string) (*html.Node, error) {
	reg.mu.RLock()
	doc := reg.opts.Document
	reg.mu.RUnlock()

	if doc == nil {
		return nil, notFoundError(selector, ErrMissingTemplate)
	}
	node, err := dom.Query(doc, selector)
	if err != nil {
		return nil, notFoundError(selector, fmt.Errorf("%w: %w", ErrMissingTemplate, err))
	}
	if !dom.IsElement(node, "template") {
		return nil, notFoundError(selector, ErrMissingTemplate)
	}
	return node, nil
}

// Await implements Resolver. It returns the compiled template of a defined
// name. A name that is pending (announced by DefineDocument) is waited for;
// any other undefined name fails with ErrNotFound unless WaitUndefined is
// set. Waiting on a name that, through other waiting definitions, waits on
// owner fails with ErrCycle.
func (reg *Registry) Await(ctx context.Context, owner, name string) (*Compiled, error) {
	name = normalizeName(name)
	owner = normalizeName(owner)

	for {
		reg.mu.Lock()
		if compiled, ok := reg.named[name]; ok {
			reg.mu.Unlock()
			return compiled, nil
		}
		if err, ok := reg.failed[name]; ok && !reg.pending[name] {
			reg.mu.Unlock()
			return nil, notFoundError(name, fmt.Errorf("%w: extend target failed: %w", ErrNotFound, err))
		}
		if !reg.pending[name] && !reg.opts.WaitUndefined {
			reg.mu.Unlock()
			return nil, notFoundError(name, ErrNotFound)
		}
		if owner != "" {
			if reg.reachesLocked(name, owner) {
				reg.mu.Unlock()
				return nil, configError(owner, fmt.Errorf("%w: %s extends %s", ErrCycle, owner, name))
			}
			if reg.waits[owner] == nil {
				reg.waits[owner] = make(map[string]bool)
			}
			reg.waits[owner][name] = true
		}
		ch := reg.readyLocked(name)
		reg.mu.Unlock()

		reg.logger.Debug("waiting for definition", "owner", owner, "name", name)
		var err error
		select {
		case <-ch:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if owner != "" {
			reg.mu.Lock()
			delete(reg.waits[owner], name)
			reg.mu.Unlock()
		}
		if err != nil {
			return nil, err
		}
	}
}

// WhenDefined blocks until name is defined or ctx is done.
func (reg *Registry) WhenDefined(ctx context.Context, name string) error {
	name = normalizeName(name)
	for {
		reg.mu.Lock()
		if _, ok := reg.defs[name]; ok {
			reg.mu.Unlock()
			return nil
		}
		ch := reg.readyLocked(name)
		reg.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// announce marks names as being defined so extend references to them wait
// instead of failing.
func (reg *Registry) announce(names ...string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, name := range names {
		name = normalizeName(name)
		if _, ok := reg.defs[name]; ok || name == "" {
			continue
		}
		reg.pending[name] = true
		delete(reg.failed, name)
	}
}

// fail records that a definition attempt for name ended with err and wakes
// anyone waiting on it.
func (reg *Registry) fail(name string, err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.defs[name]; ok || name == "" {
		return
	}
	if reg.pending[name] {
		reg.failed[name] = err
	}
	delete(reg.pending, name)
	reg.settleLocked(name)
}

func (reg *Registry) readyLocked(name string) chan struct{} {
	ch, ok := reg.ready[name]
	if !ok {
		ch = make(chan struct{})
		reg.ready[name] = ch
	}
	return ch
}

func (reg *Registry) settleLocked(name string) {
	if ch, ok := reg.ready[name]; ok {
		close(ch)
		delete(reg.ready, name)
	}
}

// reachesLocked reports whether from waits, directly or through other
// waiting definitions, on to.
func (reg *Registry) reachesLocked(from, to string) bool {
	seen := make(map[string]bool)
	var walk func(string) bool
	walk = func(n string) bool {
		if n == to {
			return true
		}
		if seen[n] {
			return false
		}
		seen[n] = true
		for next := range reg.waits[n] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// Handler returns the HTTP handler serving rendered instances.
// Mount this at reg.Path() in your application.
func (reg *Registry) Handler() http.Handler {
	return reg.mux
}

// Path returns the URL prefix the handler serves, always with a leading
// and trailing slash.
func (reg *Registry) Path() string {
	p := reg.opts.Path
	if p == "" {
		return DefaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
