package gateway

import (
	"errors"
	"net/http"

	"github.com/flemzord/membot/internal/bot"
	"github.com/flemzord/membot/internal/security"
)

type botAction string

const (
	actionStart   botAction = "start"
	actionStop    botAction = "stop"
	actionRestart botAction = "restart"
)

// botControlResponse extends the mutation response with the resulting
// runtime status.
type botControlResponse struct {
	mutationResponse
	Status bot.Status `json:"status"`
}

// handleBotControl starts, stops or restarts the bot runtime. Starting a
// running bot and stopping a stopped one answer 409.
func (g *Gateway) handleBotControl(action botAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.responder == nil {
			unavailable(w, "bot")
			return
		}
		rt := g.responder.Runtime()

		var err error
		switch action {
		case actionStart:
			err = rt.Start()
		case actionStop:
			err = rt.Stop()
		case actionRestart:
			err = rt.Restart()
		}

		resp := botControlResponse{Status: rt.Status()}
		code := http.StatusOK
		if err != nil {
			resp.Error = err.Error()
			code = http.StatusInternalServerError
			if errors.Is(err, bot.ErrAlreadyRunning) || errors.Is(err, bot.ErrNotRunning) {
				code = http.StatusConflict
			}
		} else {
			resp.Success = true
			g.logger.Info("bot control", "action", string(action), "client", clientIP(r))
			g.audit.Log(security.AuditEvent{
				Type:   security.EventBotControl,
				Actor:  clientIP(r),
				Detail: string(action),
			})
		}
		writeJSON(w, code, resp)
	}
}
