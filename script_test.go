package cdefine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func TestCompileHCL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"syntax", `count = `, "script[0]"},
		{"unknown block", `resource "x" {}`, `unsupported block "resource"`},
		{"emit without label", `emit {}`, `takes 1 label(s)`},
		{"shared with label", `shared "x" {}`, `takes 0 label(s)`},
		{"nested block", "shared {\n  emit \"x\" {}\n}", "cannot nest blocks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileHCL(ScriptRef{Template: "t", Body: tt.body})
			if !errors.Is(err, ErrInvalidScript) {
				t.Fatalf("CompileHCL() error = %v, want ErrInvalidScript", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestScript_StateSharedAndEmit(t *testing.T) {
	reg := newTestRegistry(t)
	def := defineTemplate(t, reg, "greeter", `<template observe:who>`+
		`<script>
greeting = "hello ${self.attrs.who}"
count    = try(self.state.count, 0) + 1
double   = self.state.count * 2

shared {
  seen = try(self.shared.seen, 0) + 1
}

emit "greeted" {
  who   = upper(self.attrs.who)
  count = self.state.count
}
</script>`+
		`</template>`, DefineOptions{})

	ctx := context.Background()
	inst := def.New(html.Attribute{Key: "who", Val: "ada"})
	var emitted []Event
	inst.On("greeted", func(ev Event) { emitted = append(emitted, ev) })

	if err := inst.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	want := map[string]any{"greeting": "hello ada", "count": 1, "double": 2}
	if diff := cmp.Diff(want, inst.State().Snapshot()); diff != "" {
		t.Errorf("state (-want +got):\n%s", diff)
	}
	if len(emitted) != 1 {
		t.Fatalf("emitted %d events, want 1", len(emitted))
	}
	if diff := cmp.Diff(map[string]any{"who": "ADA", "count": 1}, emitted[0].Detail); diff != "" {
		t.Errorf("detail (-want +got):\n%s", diff)
	}

	if err := inst.Move(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := inst.State().Get("count"); v != 2 {
		t.Errorf("count after move = %v, want 2", v)
	}

	other := def.New(html.Attribute{Key: "who", Val: "bob"})
	if err := other.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := other.State().Get("count"); v != 1 {
		t.Errorf("other count = %v, want 1", v)
	}
	if v, _ := def.Shared().Get("seen"); v != 3 {
		t.Errorf("shared seen = %v, want 3", v)
	}
}

func TestScript_RuntimeErrorAborts(t *testing.T) {
	reg := newTestRegistry(t)
	def := defineTemplate(t, reg, "broken", `<template>`+
		`<script>first = 1</script>`+
		`<script>value = self.attrs.missing</script>`+
		`<script>last = 1</script>`+
		`</template>`, DefineOptions{})

	inst := def.New()
	if err := inst.Connect(context.Background()); err == nil {
		t.Fatal("Connect() should fail on an unknown attribute")
	}
	if diff := cmp.Diff([]string{"first"}, inst.State().Keys()); diff != "" {
		t.Errorf("state keys (-want +got):\n%s", diff)
	}
}

func TestScript_ModuleRunsAsync(t *testing.T) {
	reg := newTestRegistry(t)
	def := defineTemplate(t, reg, "mod", `<template>`+
		`<script type="module">step = 1</script>`+
		`<script>step = self.state.step + 1</script>`+
		`</template>`, DefineOptions{})

	inst := def.New()
	if err := inst.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := inst.State().Get("step"); v != 2 {
		t.Errorf("step = %v, want 2", v)
	}
}

func TestScriptEngine_CatalogFirst(t *testing.T) {
	cat := NewCatalog()
	called := false
	cat.Register("mark", func(context.Context, *Instance) error {
		called = true
		return nil
	})
	eng := NewScriptEngine(cat)

	fn, err := eng.CompileScript(ScriptRef{Body: "  mark \n"})
	if err != nil {
		t.Fatal(err)
	}
	if err := fn(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("catalog behavior was not used")
	}

	if _, err := eng.CompileScript(ScriptRef{Body: "x = 1"}); err != nil {
		t.Errorf("HCL body error = %v", err)
	}
}

func TestCatalog_RegisterPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(c *Catalog)
	}{
		{"empty name", func(c *Catalog) { c.Register(" ", func(context.Context, *Instance) error { return nil }) }},
		{"nil func", func(c *Catalog) { c.Register("x", nil) }},
		{"duplicate", func(c *Catalog) {
			noop := func(context.Context, *Instance) error { return nil }
			c.Register("x", noop)
			c.Register("x", noop)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("Register() should panic")
				}
			}()
			tt.fn(NewCatalog())
		})
	}
}

func TestToCtyFromCty(t *testing.T) {
	in := map[string]any{
		"s":    "x",
		"b":    true,
		"i":    int64(7),
		"f":    1.5,
		"list": []any{"a", 2},
		"obj":  map[string]any{"k": "v"},
		"nil":  nil,
	}
	got, err := fromCty(toCty(in))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"s":    "x",
		"b":    true,
		"i":    7,
		"f":    1.5,
		"list": []any{"a", 2},
		"obj":  map[string]any{"k": "v"},
		"nil":  nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}
