package cdefine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/pthm/cdefine/lib/dom"
)

// Status is where an instance is in its lifecycle.
type Status int

const (
	Unattached Status = iota
	Attached
	Detached
	Adopted
)

func (s Status) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	case Adopted:
		return "adopted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Live reports whether an instance in this status is in the instance
// registry.
func (s Status) Live() bool {
	return s == Attached || s == Adopted
}

// Lifecycle notifications.
const (
	EventConnected        = "connected"
	EventConnectedMove    = "connectedMove"
	EventDisconnected     = "disconnected"
	EventAdopted          = "adopted"
	EventAttributeChanged = "attributeChanged"
)

// IsLifecycleEvent reports whether typ is one of the notifications the
// instance raises on its own.
func IsLifecycleEvent(typ string) bool {
	switch typ {
	case EventConnected, EventConnectedMove, EventDisconnected, EventAdopted, EventAttributeChanged:
		return true
	}
	return false
}

// Event is a notification raised by an instance.
type Event struct {
	Type   string
	Detail map[string]any
	Target *Instance
}

// Listener receives events.
type Listener func(Event)

// HookKind selects the notification a Hook intercepts.
type HookKind int

const (
	HookAttributeChanged HookKind = iota
	HookDisconnected
	HookAdopted
)

// Hook runs before the default dispatch of its notification. Returning
// false suppresses the dispatch.
type Hook func(self *Instance, ev Event) bool

// Internals carries the form participation of a form-associated instance.
type Internals struct {
	mu      sync.RWMutex
	value   string
	message string
}

// SetFormValue sets the value submitted with the owning form.
func (in *Internals) SetFormValue(v string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.value = v
}

func (in *Internals) FormValue() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.value
}

// SetValidity marks the instance invalid with message, or valid when
// message is empty.
func (in *Internals) SetValidity(message string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.message = message
}

func (in *Internals) Valid() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.message == ""
}

func (in *Internals) ValidationMessage() string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.message
}

// Instance is one live use of a Definition: an id, a render root that is
// filled exactly once, private state and the notifications it raises.
type Instance struct {
	id        string
	def       *Definition
	root      *dom.Root
	state     *State
	internals *Internals

	mu        sync.Mutex
	status    Status
	attrs     []html.Attribute
	listeners map[string][]Listener
	any       []Listener
	hooks     map[HookKind]Hook

	// runMu serializes behavior runs of this instance.
	runMu sync.Mutex
	queue []*Unit
}

// New creates an unattached instance carrying attrs. Nothing is rendered
// and no behavior runs until Connect.
func (d *Definition) New(attrs ...html.Attribute) *Instance {
	inst := &Instance{
		id:        newID(),
		def:       d,
		root:      dom.NewRoot(),
		state:     NewState(),
		listeners: make(map[string][]Listener),
		hooks:     make(map[HookKind]Hook),
	}
	for _, a := range attrs {
		inst.setAttr(strings.ToLower(a.Key), a.Val)
	}
	if d.src != "" {
		if _, ok := inst.Attribute("src"); !ok {
			inst.attrs = append([]html.Attribute{{Key: "src", Val: d.src}}, inst.attrs...)
		}
	}
	if d.formAssociated {
		inst.internals = &Internals{}
	}
	return inst
}

func (inst *Instance) ID() string { return inst.id }

// Name returns the tag the instance renders as.
func (inst *Instance) Name() string { return inst.def.name }

func (inst *Instance) Definition() *Definition { return inst.def }

// Root returns the isolated render root.
func (inst *Instance) Root() *dom.Root { return inst.root }

// State returns the per-instance state.
func (inst *Instance) State() *State { return inst.state }

// Shared returns the state bag shared with every instance of the
// definition.
func (inst *Instance) Shared() *State { return inst.def.shared }

// Internals returns the form internals, or nil when the definition is not
// form-associated.
func (inst *Instance) Internals() *Internals { return inst.internals }

func (inst *Instance) Status() Status {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.status
}

// Rendered reports whether the template content has been appended to the
// render root.
func (inst *Instance) Rendered() bool {
	return inst.root.Appended()
}

// Attributes returns a copy of the host attributes in order.
func (inst *Instance) Attributes() []html.Attribute {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return slices.Clone(inst.attrs)
}

// Attribute returns the value of the named host attribute.
func (inst *Instance) Attribute(name string) (string, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	i := inst.attrIndex(strings.ToLower(name))
	if i < 0 {
		return "", false
	}
	return inst.attrs[i].Val, true
}

// SetAttribute sets a host attribute and notifies an attribute change.
func (inst *Instance) SetAttribute(name, value string) {
	name = strings.ToLower(name)
	inst.mu.Lock()
	var old any
	if i := inst.attrIndex(name); i >= 0 {
		old = inst.attrs[i].Val
	}
	inst.setAttr(name, value)
	inst.mu.Unlock()

	inst.attributeChanged(name, old, value)
}

// RemoveAttribute removes a host attribute and notifies an attribute
// change with a nil value. Removing an absent attribute does nothing.
func (inst *Instance) RemoveAttribute(name string) {
	name = strings.ToLower(name)
	inst.mu.Lock()
	i := inst.attrIndex(name)
	if i < 0 {
		inst.mu.Unlock()
		return
	}
	old := inst.attrs[i].Val
	inst.attrs = slices.Delete(inst.attrs, i, i+1)
	inst.mu.Unlock()

	inst.attributeChanged(name, old, nil)
}

// AttributeChanged is the host notification that attribute name changed
// from old to value. It is raised only while the instance is live and the
// name is observed.
func (inst *Instance) AttributeChanged(name, old, value string) {
	inst.attributeChanged(strings.ToLower(name), old, value)
}

func (inst *Instance) attributeChanged(name string, old, value any) {
	if !inst.Status().Live() || !inst.def.Observes(name) {
		return
	}
	ev := Event{
		Type:   EventAttributeChanged,
		Detail: map[string]any{"name": name, "old": old, "value": value},
		Target: inst,
	}
	if inst.hook(HookAttributeChanged, ev) {
		inst.dispatch(ev)
	}
}

// Connect is the host attach notification. It registers the instance,
// renders the template content into the root the first time, then runs
// every behavior unit in order and raises connected after the last one.
// Reconnecting after Disconnect runs the behaviors again but never
// re-renders. Connecting an attached instance is a Move; an adopted
// instance gets a full connect.
//
// A behavior error aborts the rest of the run and is returned; the instance
// stays attached.
func (inst *Instance) Connect(ctx context.Context) error {
	inst.mu.Lock()
	if inst.status == Attached {
		inst.mu.Unlock()
		return inst.Move(ctx)
	}
	inst.status = Attached
	inst.mu.Unlock()

	reg := inst.def.registry
	reg.instances.Register(inst)
	if !inst.root.Appended() {
		inst.root.AppendOnce(inst.def.compiled.Fragment())
	}
	reg.logger.Debug("instance connected", "name", inst.Name(), "id", inst.id)

	return inst.run(ctx, EventConnected)
}

// Move is the host notification that a live instance moved within the
// tree. Behaviors run again and connectedMove is raised; nothing is
// re-rendered. Moving an instance that is not live connects it.
func (inst *Instance) Move(ctx context.Context) error {
	if !inst.Status().Live() {
		return inst.Connect(ctx)
	}
	inst.def.registry.logger.Debug("instance moved", "name", inst.Name(), "id", inst.id)
	return inst.run(ctx, EventConnectedMove)
}

// Disconnect is the host detach notification. The instance leaves the
// instance registry and raises disconnected unless a hook suppresses it.
// Disconnecting an instance that is not live does nothing.
func (inst *Instance) Disconnect() {
	inst.mu.Lock()
	if !inst.status.Live() {
		inst.mu.Unlock()
		return
	}
	inst.status = Detached
	inst.mu.Unlock()

	reg := inst.def.registry
	reg.instances.Unregister(inst.id)
	reg.logger.Debug("instance disconnected", "name", inst.Name(), "id", inst.id)

	ev := Event{Type: EventDisconnected, Target: inst}
	if inst.hook(HookDisconnected, ev) {
		inst.dispatch(ev)
	}
}

// Adopt is the host notification that the instance moved to another
// document. It is registered again under the same id and raises adopted
// unless a hook suppresses it.
func (inst *Instance) Adopt() {
	inst.mu.Lock()
	inst.status = Adopted
	inst.mu.Unlock()

	reg := inst.def.registry
	reg.instances.Register(inst)
	reg.logger.Debug("instance adopted", "name", inst.Name(), "id", inst.id)

	ev := Event{Type: EventAdopted, Target: inst}
	if inst.hook(HookAdopted, ev) {
		inst.dispatch(ev)
	}
}

// SetHook installs h for kind, replacing any earlier hook. Hooks are
// ignored unless the definition enables them.
func (inst *Instance) SetHook(kind HookKind, h Hook) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if h == nil {
		delete(inst.hooks, kind)
		return
	}
	inst.hooks[kind] = h
}

// On adds a listener for events of type typ.
func (inst *Instance) On(typ string, l Listener) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.listeners[typ] = append(inst.listeners[typ], l)
}

// OnAny adds a listener for every event.
func (inst *Instance) OnAny(l Listener) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.any = append(inst.any, l)
}

// Dispatch raises an event of type typ with detail.
func (inst *Instance) Dispatch(typ string, detail map[string]any) {
	inst.dispatch(Event{Type: typ, Detail: detail, Target: inst})
}

func (inst *Instance) dispatch(ev Event) {
	inst.mu.Lock()
	ls := slices.Concat(inst.listeners[ev.Type], inst.any)
	inst.mu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}

// hook runs the hook for kind and reports whether the default dispatch
// should follow.
func (inst *Instance) hook(kind HookKind, ev Event) bool {
	if !inst.def.hooks {
		return true
	}
	inst.mu.Lock()
	h := inst.hooks[kind]
	inst.mu.Unlock()
	if h == nil {
		return true
	}
	return h(inst, ev)
}

// Seal encodes the per-instance state into a token.
func (inst *Instance) Seal(sensitive bool) (string, error) {
	return inst.def.registry.encoder.Encode(inst.state.Snapshot(), sensitive)
}

// Unseal replaces the per-instance state with the contents of token.
func (inst *Instance) Unseal(token string, sensitive bool) error {
	m, err := inst.def.registry.encoder.Decode(token, sensitive)
	if err != nil {
		return err
	}
	inst.state.Replace(m)
	return nil
}

// run copies the behaviors into the private queue and consumes it in
// order. Each unit is awaited before the next starts, so a module unit
// holds back the rest of the queue until it settles. The final event is
// raised after the last unit.
func (inst *Instance) run(ctx context.Context, final string) error {
	inst.runMu.Lock()
	defer inst.runMu.Unlock()

	reg := inst.def.registry
	ctx = withInstance(ctx, reg, inst.id)

	inst.queue = inst.def.compiled.Behaviors()
	for len(inst.queue) > 0 {
		u := inst.queue[0]
		inst.queue = inst.queue[1:]

		err := Await(ctx, u.Invoke(ctx, inst))
		reg.metrics.ran(err)
		if err != nil {
			skipped := len(inst.queue)
			inst.queue = nil
			reg.logger.Warn("behavior failed",
				"name", inst.Name(),
				"id", inst.id,
				"skipped", skipped,
				"error", err)
			return fmt.Errorf("cdefine: %s: behavior failed: %w", inst.Name(), err)
		}
	}

	inst.dispatch(Event{Type: final, Target: inst})
	return nil
}

func (inst *Instance) attrIndex(name string) int {
	return slices.IndexFunc(inst.attrs, func(a html.Attribute) bool { return a.Key == name })
}

func (inst *Instance) setAttr(name, value string) {
	if i := inst.attrIndex(name); i >= 0 {
		inst.attrs[i].Val = value
		return
	}
	inst.attrs = append(inst.attrs, html.Attribute{Key: name, Val: value})
}
