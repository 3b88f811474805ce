// mockapi serves a fake YouTube Data API v3 for local end-to-end runs
// without real credentials. It answers /channels lookups from a fixture
// table and can inject quota and server faults to exercise the retry
// pipeline.
//
// Point the worker at it with YTC_API_BASE_URL=http://localhost:8089.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

var fixtures = map[string]string{
	// forHandle -> channel id
	"MrBeast":   "UCX6OQ3DkcsbYNE6H8uQQuVA",
	"PewDiePie": "UC-lHJZR3Gqxm24_Vd_AJ5Yw",
}

var legacyUsers = map[string]string{
	// forUsername -> channel id
	"pewdiepie": "UC-lHJZR3Gqxm24_Vd_AJ5Yw",
}

type server struct {
	quotaEvery int64 // every Nth request fails with quotaExceeded; 0 disables
	faultEvery int64 // every Nth request fails with 503; 0 disables
	requests   atomic.Int64
}

func (s *server) channels(w http.ResponseWriter, r *http.Request) {
	n := s.requests.Add(1)
	if r.URL.Query().Get("key") == "" {
		writeError(w, 400, "keyInvalid", "API key missing")
		return
	}
	if s.quotaEvery > 0 && n%s.quotaEvery == 0 {
		writeError(w, 403, "quotaExceeded", "The request cannot be completed because you have exceeded your quota.")
		return
	}
	if s.faultEvery > 0 && n%s.faultEvery == 0 {
		writeError(w, 503, "backendError", "Backend Error")
		return
	}

	var id string
	if handle := r.URL.Query().Get("forHandle"); handle != "" {
		id = fixtures[handle]
	} else if user := r.URL.Query().Get("forUsername"); user != "" {
		id = legacyUsers[user]
	} else if raw := r.URL.Query().Get("id"); raw != "" {
		id = raw
	}

	items := []map[string]any{}
	if id != "" {
		items = append(items, map[string]any{"kind": "youtube#channel", "id": id})
	}
	writeJSON(w, 200, map[string]any{
		"kind":  "youtube#channelListResponse",
		"items": items,
	})
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors":  []map[string]any{{"reason": reason, "message": message}},
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	addr := flag.String("addr", ":8089", "listen address")
	quotaEvery := flag.Int64("quota-every", 0, "fail every Nth request with quotaExceeded (0 = never)")
	faultEvery := flag.Int64("fault-every", 0, "fail every Nth request with 503 (0 = never)")
	flag.Parse()

	s := &server{quotaEvery: *quotaEvery, faultEvery: *faultEvery}
	mux := http.NewServeMux()
	mux.HandleFunc("/channels", s.channels)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	httpSrv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.Printf("mock YouTube API listening on %s", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Printf("mock API stopped after %d requests", s.requests.Load())
}
