package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/bobmcallan/vire-engine/internal/common"
	"github.com/bobmcallan/vire-engine/internal/monitoring"
)

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	cfg := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":              cfg.Environment,
		"string_comparer":          cfg.Engine.StringComparer,
		"max_expiration_time":      cfg.Engine.MaxExpirationTime,
		"max_state_history_length": cfg.Engine.MaxStateHistoryLength,
		"command_timeout":          cfg.Engine.CommandTimeout,
		"inbox_capacity":           cfg.Engine.InboxCapacity,
		"eviction_interval":        cfg.Engine.EvictionInterval,
		"mirror_enabled":           cfg.Engine.MirrorEnabled,
		"logging_level":            cfg.Logging.Level,
	})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	correlationID := r.URL.Query().Get("correlation_id")
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	uptime := time.Since(s.app.StartupTime).Round(time.Second)

	resp := map[string]interface{}{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"commit":     common.GetGitCommit(),
		"uptime":     uptime.String(),
		"started_at": s.app.StartupTime,
	}

	if correlationID != "" {
		if logs, err := s.app.Logger.GetMemoryLogsForCorrelation(correlationID); err == nil {
			resp["correlation_logs"] = logs
		}
	}

	if logs, err := s.app.Logger.GetMemoryLogsWithLimit(limit); err == nil {
		resp["recent_logs"] = logs
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMemstats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"heap_alloc_bytes": m.HeapAlloc,
		"heap_inuse_bytes": m.HeapInuse,
		"heap_idle_bytes":  m.HeapIdle,
		"sys_bytes":        m.Sys,
		"num_gc":           m.NumGC,
		"heap_alloc_mb":    float64(m.HeapAlloc) / 1024 / 1024,
		"heap_inuse_mb":    float64(m.HeapInuse) / 1024 / 1024,
		"heap_idle_mb":     float64(m.HeapIdle) / 1024 / 1024,
		"sys_mb":           float64(m.Sys) / 1024 / 1024,
	})
}

// --- Auth ---

type authTokenRequest struct {
	AdminToken string `json:"admin_token"`
}

// handleAuthToken exchanges the operator's configured admin token for a
// short-lived JWT the engine dashboard endpoints accept as a bearer token.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req authTokenRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if s.app.Config.Auth.AdminToken == "" || req.AdminToken != s.app.Config.Auth.AdminToken {
		WriteError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}
	token, err := signAdminToken(s.app.Config)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to sign admin token")
		WriteError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

// --- Engine dashboard ---

func (s *Server) handleEngineQueues(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.app.Dashboard.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, snap.Queues)
}

func (s *Server) handleEngineServers(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.app.Dashboard.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, snap.Servers)
}

func (s *Server) handleEngineStates(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.app.Dashboard.Snapshot(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, snap.StateCounts)
}

func (s *Server) handleEngineJobs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		WriteError(w, http.StatusBadRequest, "state query parameter is required")
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)

	page, err := s.app.Dashboard.JobsInState(r.Context(), state, offset, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) handleEngineThroughput(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		WriteError(w, http.StatusBadRequest, "state query parameter is required")
		return
	}
	buckets, err := s.throughputBuckets(r, state)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleEngineThroughputChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	state := r.URL.Query().Get("state")
	if state == "" {
		WriteError(w, http.StatusBadRequest, "state query parameter is required")
		return
	}
	buckets, err := s.throughputBuckets(r, state)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	png, err := monitoring.RenderBucketChart(state, buckets)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) throughputBuckets(r *http.Request, state string) ([]monitoring.Bucket, error) {
	sampleLimit := queryInt(r, "sample_limit", 0)
	if queryGranularity(r) == "hour" {
		return s.app.Dashboard.ThroughputByHour(r.Context(), state, sampleLimit)
	}
	return s.app.Dashboard.ThroughputByDay(r.Context(), state, sampleLimit)
}
