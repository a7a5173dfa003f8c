package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rfsavaris/raincast/internal/ingest"
	"github.com/rfsavaris/raincast/internal/predictor"
	"github.com/rfsavaris/raincast/internal/state"
	"github.com/rfsavaris/raincast/internal/store"
)

type Server struct {
	store   *store.Store
	cache   *state.Cache
	gate    *ingest.Gate
	invoker *predictor.Invoker
	port    string
}

func NewServer(st *store.Store, cache *state.Cache, gate *ingest.Gate, invoker *predictor.Invoker, port string) *Server {
	return &Server{
		store:   st,
		cache:   cache,
		gate:    gate,
		invoker: invoker,
		port:    port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/reading", s.handleIngestReading)
	mux.HandleFunc("POST /api/cloudcover", s.handleCloudCoverUpdate)
	mux.HandleFunc("POST /api/forecast", s.handleTriggerForecast)
	mux.HandleFunc("GET /api/forecast", s.handleGetForecast)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
