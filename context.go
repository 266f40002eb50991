package cdefine

import "context"

type currentKey struct{}

type current struct {
	reg *Registry
	id  string
}

func withInstance(ctx context.Context, reg *Registry, id string) context.Context {
	return context.WithValue(ctx, currentKey{}, current{reg: reg, id: id})
}

// Current returns the instance whose behavior is running under ctx. It is
// resolved through the instance registry at call time, so it reports false
// once the instance has been disconnected.
func Current(ctx context.Context) (*Instance, bool) {
	c, ok := ctx.Value(currentKey{}).(current)
	if !ok {
		return nil, false
	}
	return c.reg.Instance(c.id)
}

// CurrentID returns the id of the instance whose behavior is running under
// ctx, whether or not it is still registered.
func CurrentID(ctx context.Context) string {
	c, _ := ctx.Value(currentKey{}).(current)
	return c.id
}
