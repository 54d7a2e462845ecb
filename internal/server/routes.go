package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
	mux.HandleFunc("/debug/memstats", s.handleMemstats)

	// Auth — issues the bearer token the dashboard endpoints require.
	mux.HandleFunc("/api/auth/token", s.handleAuthToken)

	// Dashboard — read-only views over the storage engine.
	mux.HandleFunc("/api/engine/queues", s.handleEngineQueues)
	mux.HandleFunc("/api/engine/servers", s.handleEngineServers)
	mux.HandleFunc("/api/engine/states", s.handleEngineStates)
	mux.HandleFunc("/api/engine/jobs", s.handleEngineJobs)
	mux.HandleFunc("/api/engine/throughput", s.handleEngineThroughput)
	mux.HandleFunc("/api/engine/charts/throughput.png", s.handleEngineThroughputChart)
}

// --- shared query-param helpers ---

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryGranularity(r *http.Request) string {
	g := strings.ToLower(r.URL.Query().Get("granularity"))
	if g == "hour" {
		return "hour"
	}
	return "day"
}
