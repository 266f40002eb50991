package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/html"

	"github.com/pthm/cdefine"
	"github.com/pthm/cdefine/lib/dom"
)

//go:embed page.html
var page []byte

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// In production, use a real secret.
	reg := cdefine.NewRegistry(cdefine.Options{
		Key:    []byte("example-key-must-be-32-bytes!!"),
		Logger: logger,
	})
	reg.Behavior("stamp", func(ctx context.Context, self *cdefine.Instance) error {
		self.State().Set("renderedAt", time.Now().Format(time.RFC3339))
		return nil
	})

	defs, err := dom.Parse(bytes.NewReader(page))
	if err != nil {
		log.Fatal(err)
	}
	if err := reg.DefineDocument(context.Background(), defs); err != nil {
		log.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.Handle(reg.Path(), reg.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Metrics().Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		handleIndex(w, r, reg)
	})

	addr := ":8080"
	fmt.Printf("Starting server at http://localhost%s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// handleIndex upgrades a fresh copy of the page on every request.
func handleIndex(w http.ResponseWriter, r *http.Request, reg *cdefine.Registry) {
	doc, err := dom.Parse(bytes.NewReader(page))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	insts, err := reg.Upgrade(r.Context(), doc)
	if err != nil {
		reg.OnError(w, r, err)
		return
	}
	defer func() {
		for _, inst := range insts {
			inst.Disconnect()
		}
	}()
	cdefine.StripDefinitions(doc)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := html.Render(w, doc); err != nil {
		reg.Logger().Warn("render failed", "error", err)
	}
}
