package gateway

import (
	"net/http"

	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/internal/settings"
)

// handleGetSettings returns the current settings snapshot.
func (g *Gateway) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.settings == nil {
			unavailable(w, "settings")
			return
		}
		writeJSON(w, http.StatusOK, g.settings.Snapshot())
	}
}

// handlePutSettings replaces the settings. The body is decoded over the
// current snapshot, so omitted fields keep their values. Invalid settings
// answer 400 and leave the store untouched.
func (g *Gateway) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.settings == nil {
			unavailable(w, "settings")
			return
		}

		next := g.settings.Snapshot()
		if err := decodeJSON(w, r, &next); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := next.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := g.settings.Replace(next); err != nil {
			g.logger.Error("settings update failed", "error", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		g.logger.Info("settings updated", "client", clientIP(r))
		g.audit.Log(security.AuditEvent{
			Type:   security.EventSettingsUpdate,
			Actor:  clientIP(r),
			Detail: settingsSummary(next),
		})
		writeJSON(w, http.StatusOK, mutationResponse{Success: true})
	}
}

func settingsSummary(s settings.Settings) string {
	state := "disabled"
	if s.Memory.Enabled {
		state = "enabled"
	}
	return "bot_name=" + s.BotName + " memory=" + state
}
