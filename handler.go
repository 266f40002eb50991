package cdefine

import (
	"maps"
	"net/http"
	"slices"
	"sync"

	"golang.org/x/net/html"
)

const (
	// StateParam is the query parameter carrying a sealed state token.
	StateParam = "s"
	// StateHeader carries the resealed state after a request.
	StateHeader = "X-Cdefine-State"
)

// serveInstance handles GET <path>{name}?s=<token>&attr=value. It builds an
// instance from the query attributes, restores sealed state, connects it for
// the duration of the request and renders it.
func (reg *Registry) serveInstance(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, ok := reg.Lookup(name)
	if !ok {
		reg.OnError(w, r, notFoundError(name, ErrNotFound))
		return
	}

	q := r.URL.Query()
	var attrs []html.Attribute
	for _, key := range slices.Sorted(maps.Keys(q)) {
		if key == StateParam {
			continue
		}
		attrs = append(attrs, html.Attribute{Key: key, Val: q.Get(key)})
	}
	inst := def.New(attrs...)

	if token := q.Get(StateParam); token != "" {
		if err := inst.Unseal(token, reg.opts.Sensitive); err != nil {
			reg.OnError(w, r, err)
			return
		}
	}

	var (
		mu     sync.Mutex
		events []Event
	)
	inst.OnAny(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	if err := inst.Connect(r.Context()); err != nil {
		inst.Disconnect()
		reg.OnError(w, r, err)
		return
	}
	defer inst.Disconnect()

	token, err := inst.Seal(reg.opts.Sensitive)
	if err != nil {
		reg.OnError(w, r, err)
		return
	}

	w.Header().Set(StateHeader, token)
	mu.Lock()
	trigger := BuildTriggerHeader(events)
	mu.Unlock()
	if trigger != "" {
		w.Header().Set("HX-Trigger", trigger)
	}
	if err := Render(w, r, inst.Component()); err != nil {
		reg.logger.Warn("render failed", "name", def.Name(), "id", inst.ID(), "error", err)
	}
}
