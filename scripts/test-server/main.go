// Demo target for the shipped example scenarios.
package main

import (
	"flag"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
)

func newRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/api/hello", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"Hello from Fiber!"}`))
	})

	// Always fails; useful for watching thresholds trip.
	r.Get("/api/error", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	})

	return r
}

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	flag.Parse()

	server := &http.Server{
		Addr:              *addr,
		Handler:           newRouter(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("Starting demo server on %s (%d CPU cores)", *addr, runtime.NumCPU())
	log.Printf("Endpoints: /api/hello, /api/error, /health")

	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
