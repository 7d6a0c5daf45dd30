package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status          string `json:"status"` // "ok" or "degraded"
	BotRunning      bool   `json:"bot_running"`
	MemoryAvailable bool   `json:"memory_available"`
}

// handleHealth returns 200 when the bot is wired with a working memory
// backend and 503 otherwise. A stopped bot is not unhealthy.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if g.responder != nil {
			resp.BotRunning = g.responder.Runtime().Running()
		}
		if g.memory != nil {
			resp.MemoryAvailable = g.memory.Available()
		}
		code := http.StatusOK
		if g.responder == nil || !resp.MemoryAvailable {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
