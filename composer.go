package cdefine

// Combine merges compiled templates into one, in order:
//   - fragments are appended one after another,
//   - behavior units are unioned, a unit reachable through several parts
//     (a shared ancestor) is kept once at its first position,
//   - attribute values are concatenated per name, duplicates included.
//
// The parts are not modified. Combine of nothing is an empty template.
func Combine(parts ...*Compiled) *Compiled {
	out := newCompiled()
	seen := make(map[*Unit]struct{})

	for _, p := range parts {
		if p == nil {
			continue
		}
		out.fragment.Append(p.fragment.Clone())

		for _, u := range p.behaviors {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out.behaviors = append(out.behaviors, u)
		}

		for _, name := range p.names {
			if _, ok := out.attrs[name]; !ok {
				out.names = append(out.names, name)
			}
			out.attrs[name] = append(out.attrs[name], p.attrs[name]...)
		}
	}
	return out
}
