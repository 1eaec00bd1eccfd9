package server

import (
	"net/http"
	"strings"

	"github.com/casevine/casevine/version"
)

// HandleHealth serves the health check endpoint with version info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	health := map[string]interface{}{
		"status":     "ok",
		"version":    versionInfo.Version,
		"commit":     versionInfo.CommitHash,
		"build_time": versionInfo.BuildTime,
		"clients":    s.hub.ClientCount(),
	}

	writeJSON(w, http.StatusOK, health)
}

// HandleSchedulerStatus serves the deferred job engine's status snapshot.
// Always answers 200: the snapshot itself reports degraded state.
func (s *Server) HandleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	if s.engine == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"engine":  "disabled",
			"running": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Status())
}

type broadcastRequest struct {
	Message string `json:"message"`
}

// HandleBroadcast publishes an operator message to every connected client
func (s *Server) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req broadcastRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if err := s.dispatcher.Broadcast(req.Message); err != nil {
		s.logger.Errorw("Broadcast failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "sent",
		"clients": s.hub.ClientCount(),
	})
}
