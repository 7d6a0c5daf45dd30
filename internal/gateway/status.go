package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/flemzord/membot/internal/bot"
)

// StatusResponse is the JSON response for GET /status and each frame of
// GET /ws/status.
type StatusResponse struct {
	Time          time.Time  `json:"time"`
	GatewayUptime int64      `json:"gateway_uptime_seconds"`
	Bot           bot.Status `json:"bot"`
}

func (g *Gateway) status() StatusResponse {
	resp := StatusResponse{
		Time:          time.Now().UTC(),
		GatewayUptime: int64(time.Since(g.startedAt).Seconds()),
	}
	if g.responder != nil {
		resp.Bot = g.responder.Runtime().Status()
	}
	return resp
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.status())
	}
}

// handleStatusStream upgrades to a websocket and pushes a status frame
// immediately and then every StatusInterval until the client goes away.
// Client frames are ignored.
func (g *Gateway) handleStatusStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Debug("status stream: accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		ticker := time.NewTicker(g.config.StatusInterval)
		defer ticker.Stop()

		for {
			if err := g.writeStatus(ctx, conn); err != nil {
				if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
					g.logger.Debug("status stream: write failed", "error", err)
				}
				return
			}
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			case <-ticker.C:
			}
		}
	}
}

func (g *Gateway) writeStatus(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.StatusInterval)
	defer cancel()
	return wsjson.Write(ctx, conn, g.status())
}
