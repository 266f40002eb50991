package cdefine

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// TestResult holds the outcome of mounting or requesting an instance in a
// test.
//
// Provides convenience methods for asserting on HTML content, headers,
// status codes, events and state.
type TestResult struct {
	Instance        *Instance
	HTML            string
	StatusCode      int
	Headers         http.Header
	Events          []Event
	TriggeredEvents []string
}

// TestMount creates an instance of def, connects it and renders it.
//
// Every event the instance raises while connecting is recorded, lifecycle
// notifications included. The instance is left connected; call
// result.Instance.Disconnect when the test needs it detached.
//
//	result, err := cdefine.TestMount(ctx, def, html.Attribute{Key: "name", Val: "ada"})
//	if !result.HTMLContains("<p>hi</p>") {
//	    t.Fatal("missing content")
//	}
func TestMount(ctx context.Context, def *Definition, attrs ...html.Attribute) (*TestResult, error) {
	inst := def.New(attrs...)

	rec := &eventRecorder{}
	inst.OnAny(rec.record)

	if err := inst.Connect(ctx); err != nil {
		return &TestResult{Instance: inst, Events: rec.list()}, err
	}

	var buf bytes.Buffer
	if err := inst.Render(&buf); err != nil {
		return nil, err
	}

	events := rec.list()
	result := &TestResult{
		Instance:   inst,
		HTML:       buf.String(),
		StatusCode: http.StatusOK,
		Headers:    make(http.Header),
		Events:     events,
	}
	if trigger := BuildTriggerHeader(events); trigger != "" {
		result.TriggeredEvents = parseTriggerHeader(trigger)
	}
	return result, nil
}

// TestRequest simulates a GET request against the registry's handler.
//
//	result := cdefine.TestRequest(reg, "/_c/greet-card?name=ada")
//	if !result.IsOK() { ... }
func TestRequest(reg *Registry, target string) *TestResult {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("HX-Request", "true")

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	result := &TestResult{
		HTML:       rec.Body.String(),
		StatusCode: rec.Code,
		Headers:    rec.Header(),
	}
	if trigger := rec.Header().Get("HX-Trigger"); trigger != "" {
		result.TriggeredEvents = parseTriggerHeader(trigger)
	}
	return result
}

// HTMLContains checks if the HTML contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	return strings.Contains(r.HTML, substr)
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !strings.Contains(r.HTML, s) {
			return false
		}
	}
	return true
}

// HasEvent checks if an event of the given type was raised, or triggered
// through HX-Trigger.
func (r *TestResult) HasEvent(typ string) bool {
	for _, ev := range r.Events {
		if ev.Type == typ {
			return true
		}
	}
	for _, e := range r.TriggeredEvents {
		if e == typ {
			return true
		}
	}
	return false
}

// StateValue returns a per-instance state value of a mounted instance.
func (r *TestResult) StateValue(key string) (any, bool) {
	if r.Instance == nil {
		return nil, false
	}
	return r.Instance.State().Get(key)
}

// IsOK checks if the status code is 200.
func (r *TestResult) IsOK() bool {
	return r.StatusCode == http.StatusOK
}

// HasStatus checks if the status code matches.
func (r *TestResult) HasStatus(code int) bool {
	return r.StatusCode == code
}

// HasHeader checks if a header is set with the given value.
func (r *TestResult) HasHeader(key, value string) bool {
	return r.Headers.Get(key) == value
}

// GetHeader returns the value of a header.
func (r *TestResult) GetHeader(key string) string {
	return r.Headers.Get(key)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) list() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// parseTriggerHeader parses the HX-Trigger header value into event names.
// The header can be a comma separated list or JSON.
func parseTriggerHeader(trigger string) []string {
	trigger = strings.TrimSpace(trigger)
	if trigger == "" {
		return nil
	}

	// If it starts with '{', it's JSON - parse event names from top-level keys
	if strings.HasPrefix(trigger, "{") {
		var events []string
		depth := 0
		inString := false
		stringStart := -1

		for i := 0; i < len(trigger); i++ {
			c := trigger[i]

			if inString && c == '\\' && i+1 < len(trigger) {
				i++
				continue
			}

			if c == '"' {
				if !inString {
					inString = true
					stringStart = i + 1
					continue
				}
				inString = false
				if depth == 1 {
					j := i + 1
					for j < len(trigger) && (trigger[j] == ' ' || trigger[j] == '\t') {
						j++
					}
					if j < len(trigger) && trigger[j] == ':' {
						events = append(events, trigger[stringStart:i])
					}
				}
				stringStart = -1
			} else if !inString {
				switch c {
				case '{':
					depth++
				case '}':
					depth--
				}
			}
		}
		return events
	}

	parts := strings.Split(trigger, ",")
	events := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			events = append(events, p)
		}
	}
	return events
}
