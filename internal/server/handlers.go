package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
)

const healthPingTimeout = 2 * time.Second

// handleHealth is the liveness check. It pings the databases without running
// integrity checks; those live under /api/system/status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	status, code := "healthy", http.StatusOK
	databases := make(map[string]string)
	for _, db := range s.container.Databases() {
		if err := db.Conn().PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Health ping failed")
			databases[db.Name()] = "unreachable"
			status, code = "unhealthy", http.StatusServiceUnavailable
			continue
		}
		databases[db.Name()] = "ok"
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"service":    "allocator",
		"databases":  databases,
		"objectives": []optimization.Objective{optimization.MaxSharpe, optimization.MinVolatility},
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
