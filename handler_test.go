package cdefine

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

const counterTemplate = `<template observe:who><p>hi</p><script>
count = try(self.state.count, 0) + 1

emit "greeted" {
  who = self.attrs.who
}
</script></template>`

func TestHandler_ServesInstance(t *testing.T) {
	reg := newTestRegistry(t)
	defineTemplate(t, reg, "greet", counterTemplate, DefineOptions{})

	result := TestRequest(reg, "/_c/greet?who=ada")
	if !result.IsOK() {
		t.Fatalf("status = %d, body %q", result.StatusCode, result.HTML)
	}
	want := `<greet who="ada"><template shadowrootmode="open"><p>hi</p></template></greet>`
	if result.HTML != want {
		t.Errorf("body = %q, want %q", result.HTML, want)
	}
	if !result.HasHeader("HX-Trigger", `{"greeted":{"who":"ada"}}`) {
		t.Errorf("HX-Trigger = %q", result.GetHeader("HX-Trigger"))
	}
	if !result.HasEvent("greeted") {
		t.Errorf("TriggeredEvents = %v", result.TriggeredEvents)
	}

	token := result.GetHeader(StateHeader)
	if token == "" {
		t.Fatal("missing state header")
	}
	state, err := reg.Encoder().Decode(token, false)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if fmt.Sprint(state["count"]) != "1" {
		t.Errorf("count = %v, want 1", state["count"])
	}

	next := TestRequest(reg, "/_c/greet?who=ada&s="+url.QueryEscape(token))
	if !next.IsOK() {
		t.Fatalf("second status = %d", next.StatusCode)
	}
	state, err = reg.Encoder().Decode(next.GetHeader(StateHeader), false)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(state["count"]) != "2" {
		t.Errorf("count after restore = %v, want 2", state["count"])
	}

	if reg.Instances().Len() != 0 {
		t.Errorf("instances left registered: %d", reg.Instances().Len())
	}
}

func TestHandler_Errors(t *testing.T) {
	reg := newTestRegistry(t)
	defineTemplate(t, reg, "greet", counterTemplate, DefineOptions{})
	reg.Behavior("fail", func(ctx context.Context, self *Instance) error {
		return errors.New("nope")
	})
	defineTemplate(t, reg, "failing", `<template><script>fail</script></template>`, DefineOptions{})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown name", "/_c/missing", http.StatusNotFound},
		{"malformed token", "/_c/greet?who=a&s=%21%21%21", http.StatusBadRequest},
		{"forged token", "/_c/greet?who=a&s=" + forgedToken(t), http.StatusBadRequest},
		{"behavior failure", "/_c/failing", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TestRequest(reg, tt.target)
			if !result.HasStatus(tt.status) {
				t.Errorf("status = %d, want %d (body %q)", result.StatusCode, tt.status, result.HTML)
			}
		})
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	reg := newTestRegistry(t)
	defineTemplate(t, reg, "greet", counterTemplate, DefineOptions{})

	req := httptest.NewRequest(http.MethodPost, "/_c/greet", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandler_CustomOnError(t *testing.T) {
	reg := newTestRegistry(t)
	var got error
	reg.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		got = err
		w.WriteHeader(http.StatusTeapot)
	}

	result := TestRequest(reg, "/_c/nothing")
	if !result.HasStatus(http.StatusTeapot) {
		t.Errorf("status = %d, want %d", result.StatusCode, http.StatusTeapot)
	}
	if !IsNotFound(got) {
		t.Errorf("OnError got %v, want not found", got)
	}
}

// forgedToken seals state with a different key.
func forgedToken(t *testing.T) string {
	t.Helper()
	other, err := NewEncoder([]byte("another-key"))
	if err != nil {
		t.Fatal(err)
	}
	token, err := other.Encode(map[string]any{"count": 99}, false)
	if err != nil {
		t.Fatal(err)
	}
	return url.QueryEscape(token)
}

func TestHandler_CustomPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", DefaultPath},
		{"/components/", "/components/"},
		{"components", "/components/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			reg := NewRegistry(Options{Key: []byte("test-key"), Path: tt.path})
			if got := reg.Path(); got != tt.want {
				t.Fatalf("Path() = %q, want %q", got, tt.want)
			}
			defineTemplate(t, reg, "greet", counterTemplate, DefineOptions{})

			if result := TestRequest(reg, tt.want+"greet?who=a"); !result.IsOK() {
				t.Errorf("status = %d, want 200", result.StatusCode)
			}
		})
	}
}

func TestHandler_EmptyKeyIsRandom(t *testing.T) {
	reg := NewRegistry(Options{})
	defineTemplate(t, reg, "greet", counterTemplate, DefineOptions{})

	// A key derived from the empty string is public.
	empty := sha256.Sum256(nil)
	public, err := NewEncoder(empty[:])
	if err != nil {
		t.Fatal(err)
	}
	token, err := public.Encode(map[string]any{"count": 99}, false)
	if err != nil {
		t.Fatal(err)
	}

	result := TestRequest(reg, "/_c/greet?who=a&s="+url.QueryEscape(token))
	if !result.HasStatus(http.StatusBadRequest) {
		t.Errorf("status = %d, want %d", result.StatusCode, http.StatusBadRequest)
	}

	other := NewRegistry(Options{})
	defineTemplate(t, other, "greet", counterTemplate, DefineOptions{})
	sealed := TestRequest(reg, "/_c/greet?who=a").GetHeader(StateHeader)
	if sealed == "" {
		t.Fatal("missing state header")
	}
	if result := TestRequest(other, "/_c/greet?who=a&s="+url.QueryEscape(sealed)); !result.HasStatus(http.StatusBadRequest) {
		t.Errorf("token from another keyless registry: status = %d, want %d", result.StatusCode, http.StatusBadRequest)
	}
}
