package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultHistoryLimit bounds the frames a Feed retains.
	DefaultHistoryLimit = 1000
	// DefaultHistoryQuery is used when /history has no limit parameter.
	DefaultHistoryQuery = 200
	maxHistoryQuery     = 5000
)

// Feed serves recent frames over HTTP for dashboards. It is itself a Sink.
//
//	GET /health           {"ok": true}
//	GET /latest           last frame or {}
//	GET /history?limit=N  last N frames, N clamped to [1, 5000]
type Feed struct {
	mu      sync.RWMutex
	latest  *Frame
	history []Frame
	limit   int

	server   *http.Server
	listener net.Listener
}

// NewFeed creates a feed retaining up to historyLimit frames.
func NewFeed(historyLimit int) *Feed {
	if historyLimit < 1 {
		historyLimit = DefaultHistoryLimit
	}
	return &Feed{limit: historyLimit}
}

// Emit records frame as latest and appends it to the bounded history.
func (f *Feed) Emit(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr := frame
	f.latest = &fr
	f.history = append(f.history, frame)
	if over := len(f.history) - f.limit; over > 0 {
		f.history = append(f.history[:0:0], f.history[over:]...)
	}
}

// Latest returns the last frame, if any.
func (f *Feed) Latest() (Frame, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return Frame{}, false
	}
	return *f.latest, true
}

// History returns up to the last n frames, oldest first.
func (f *Feed) History(n int) []Frame {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n > len(f.history) {
		n = len(f.history)
	}
	out := make([]Frame, n)
	copy(out, f.history[len(f.history)-n:])
	return out
}

// #region http

// Handler returns the feed's HTTP routes with permissive CORS.
func (f *Feed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	mux.HandleFunc("GET /latest", func(w http.ResponseWriter, r *http.Request) {
		frame, ok := f.Latest()
		if !ok {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
		writeJSON(w, http.StatusOK, frame)
	})
	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, f.History(parseLimit(r.URL.Query().Get("limit"))))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
	})
	return cors(mux)
}

func parseLimit(raw string) int {
	if raw == "" {
		return DefaultHistoryQuery
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultHistoryQuery
	}
	return max(1, min(n, maxHistoryQuery))
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[FEED] write response: %v", err)
	}
}

// Start listens on addr and serves in the background.
func (f *Feed) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("feed listen %s: %w", addr, err)
	}
	f.listener = ln
	f.server = &http.Server{Handler: f.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := f.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[FEED] serve: %v", err)
		}
	}()
	log.Printf("[FEED] serving on http://%s", ln.Addr())
	return nil
}

// Addr returns the bound address once started.
func (f *Feed) Addr() string {
	if f.listener == nil {
		return ""
	}
	return f.listener.Addr().String()
}

// Close shuts the server down if it was started.
func (f *Feed) Close() error {
	if f.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}

// #endregion http
