package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand/v2"
	"net/http"
	"time"
)

type snapshot struct {
	TrafficCount    int     `json:"traffic_count"`
	ErrorRate       int     `json:"error_rate"`
	Uptime          int     `json:"uptime"`
	CPUUsage        float64 `json:"cpu_usage"`
	MemoryUsage     float64 `json:"memory_usage"`
	DiskIO          float64 `json:"disk_io"`
	ConcurrentUsers int     `json:"concurrent_users"`
}

var profiles = map[string]snapshot{
	"nominal":  {TrafficCount: 1000, ErrorRate: 5, Uptime: 99, CPUUsage: 40, MemoryUsage: 50, DiskIO: 30, ConcurrentUsers: 200},
	"degraded": {TrafficCount: 1000, ErrorRate: 60, Uptime: 99, CPUUsage: 98, MemoryUsage: 50, DiskIO: 30, ConcurrentUsers: 200},
	"outage":   {TrafficCount: 48000, ErrorRate: 90, Uptime: 85, CPUUsage: 100, MemoryUsage: 97, DiskIO: 220, ConcurrentUsers: 6000},
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// /api/metrics/{profile} serves a fixed snapshot; /api/metrics/random jitters the nominal one.
	mux.HandleFunc("/api/metrics/{profile}", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		name := r.PathValue("profile")
		if name == "random" {
			writeJSON(w, jitter(profiles["nominal"]))
			return
		}
		snap, ok := profiles[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, snap)
	})

	mux.HandleFunc("/api/metrics/broken", func(w http.ResponseWriter, r *http.Request) {
		if !enforceGet(w, r) {
			return
		}
		writeJSON(w, map[string]any{"traffic_count": 10})
	})

	mux.HandleFunc("/api/metrics/flaky", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	logger := log.New(log.Writer(), "metrics-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func jitter(s snapshot) snapshot {
	s.TrafficCount += rand.IntN(2000)
	s.ErrorRate += rand.IntN(20)
	s.CPUUsage += rand.Float64() * 50
	s.MemoryUsage += rand.Float64() * 40
	s.DiskIO += rand.Float64() * 100
	s.ConcurrentUsers += rand.IntN(1500)
	return s
}

func enforceGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
