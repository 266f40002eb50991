package cdefine

import (
	"slices"
	"strings"

	"github.com/pthm/cdefine/lib/dom"
)

// ObservePrefix marks a template attribute that declares a watched
// attribute: observe:color watches "color".
const ObservePrefix = "observe:"

// Compiled is the script-free, possibly merged form of one or more
// templates. It is immutable once produced and shared by every instance
// of the definitions built from it.
type Compiled struct {
	fragment  *dom.Fragment
	behaviors []*Unit
	attrs     map[string][]string
	names     []string // attribute names, first-appearance order
}

func newCompiled() *Compiled {
	return &Compiled{
		fragment: dom.NewFragment(),
		attrs:    make(map[string][]string),
	}
}

// Fragment returns a fresh deep copy of the render fragment.
func (c *Compiled) Fragment() *dom.Fragment {
	return c.fragment.Clone()
}

// Size returns the number of nodes in the render fragment.
func (c *Compiled) Size() int {
	return c.fragment.Size()
}

// HTML renders the fragment.
func (c *Compiled) HTML() string {
	return c.fragment.String()
}

// Behaviors returns the behavior units in run order.
func (c *Compiled) Behaviors() []*Unit {
	return slices.Clone(c.behaviors)
}

// Attr returns every value contributed for name, in composition order.
func (c *Compiled) Attr(name string) []string {
	return slices.Clone(c.attrs[name])
}

// AttrNames returns the attribute names in first-appearance order.
func (c *Compiled) AttrNames() []string {
	return slices.Clone(c.names)
}

// Attrs returns a copy of the attribute map.
func (c *Compiled) Attrs() map[string][]string {
	out := make(map[string][]string, len(c.attrs))
	for k, v := range c.attrs {
		out[k] = slices.Clone(v)
	}
	return out
}

// ObservedAttributes returns the names declared through observe:<name>
// attributes, prefix stripped, without duplicates.
func (c *Compiled) ObservedAttributes() []string {
	var out []string
	for _, name := range c.names {
		if !strings.HasPrefix(name, ObservePrefix) {
			continue
		}
		watched := strings.TrimPrefix(name, ObservePrefix)
		if watched != "" && !slices.Contains(out, watched) {
			out = append(out, watched)
		}
	}
	return out
}
