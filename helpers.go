package cdefine

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/a-h/templ"
)

// Render writes a templ component to the HTTP response.
//
// Sets Content-Type to text/html and renders the component using the
// request's context:
//
//	cdefine.Render(w, r, inst.Component())
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsHTMX returns true if the request originated from HTMX.
func IsHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// BuildTriggerHeader builds an HX-Trigger header value from the events an
// instance dispatched. Lifecycle notifications are left out.
//
// Events without detail produce a plain list ("saved, closed"); if any
// event carries detail the value is a JSON object keyed by event type:
//
//	{"greeted": {"who": "ada"}, "saved": true}
//
// When an event type is dispatched more than once, the last detail wins.
func BuildTriggerHeader(events []Event) string {
	var order []string
	details := make(map[string]any)
	hasDetail := false
	for _, ev := range events {
		if ev.Type == "" || IsLifecycleEvent(ev.Type) {
			continue
		}
		if !slices.Contains(order, ev.Type) {
			order = append(order, ev.Type)
		}
		if ev.Detail != nil {
			details[ev.Type] = ev.Detail
			hasDetail = true
		} else if _, ok := details[ev.Type]; !ok {
			details[ev.Type] = true
		}
	}
	if len(order) == 0 {
		return ""
	}
	if !hasDetail {
		return strings.Join(order, ", ")
	}
	data, _ := json.Marshal(details)
	return string(data)
}
