// Package cdefineecho provides Echo framework integration for cdefine
// components.
//
// Mount the instance handler onto an Echo instance or group:
//
//	e := echo.New()
//	reg := cdefineecho.Mount(e)
//	reg.DefineDocument(ctx, doc)
//
// Or mount on a group with middleware:
//
//	g := e.Group("/app", authMiddleware)
//	reg := cdefineecho.MountGroup(g)
package cdefineecho

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/pthm/cdefine"
)

// Option configures the Mount and MountGroup functions.
type Option func(*options)

type options struct {
	key       []byte
	path      string
	sensitive bool
	logger    *slog.Logger
}

// WithKey sets the key that seals instance state.
// If not provided, a random key is generated (suitable for development only).
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithPath sets the URL path prefix for instance routes.
// Defaults to cdefine.DefaultPath.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithSensitive encrypts state tokens instead of only signing them.
func WithSensitive() Option {
	return func(o *options) {
		o.sensitive = true
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Mount creates a registry and mounts its instance handler on an Echo
// instance.
//
//	e := echo.New()
//	reg := cdefineecho.Mount(e, cdefineecho.WithKey(key))
func Mount(e *echo.Echo, opts ...Option) *cdefine.Registry {
	reg := newRegistry(opts)
	e.GET(reg.Path()+"*", handler(reg))
	return reg
}

// MountGroup creates a registry and mounts its instance handler on an Echo
// group, so instance requests pass through the group's middleware.
func MountGroup(g *echo.Group, opts ...Option) *cdefine.Registry {
	reg := newRegistry(opts)
	g.GET(reg.Path()+"*", handler(reg))
	return reg
}

func newRegistry(opts []Option) *cdefine.Registry {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	key := o.key
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("cdefineecho: failed to generate random key: %v", err))
		}
	}

	return cdefine.NewRegistry(cdefine.Options{
		Key:       key,
		Sensitive: o.sensitive,
		Path:      o.path,
		Logger:    o.logger,
	})
}

// handler rewrites the matched wildcard back onto the registry path so the
// registry's own routing sees it regardless of any group prefix.
func handler(reg *cdefine.Registry) echo.HandlerFunc {
	h := reg.Handler()
	return func(c echo.Context) error {
		name, err := url.PathUnescape(c.Param("*"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid component name")
		}
		r := c.Request().Clone(c.Request().Context())
		r.URL.Path = reg.Path() + name
		r.URL.RawPath = ""
		h.ServeHTTP(c.Response(), r)
		return nil
	}
}

// Render writes a templ component to the Echo response.
//
//	func handler(c echo.Context) error {
//	    return cdefineecho.Render(c, inst.Component())
//	}
func Render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(c.Request().Context(), c.Response())
}
