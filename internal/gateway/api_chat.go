package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/flemzord/membot/internal/bot"
	"github.com/flemzord/membot/internal/provider"
	"github.com/flemzord/membot/pkg/message"
)

// chatRequest is the body of POST /api/chat and POST /api/context/preview.
// It stands in for a Discord message so operators can exercise the bot
// without the platform.
type chatRequest struct {
	UserID      string               `json:"user_id"`
	UserName    string               `json:"user_name,omitempty"`
	ChannelID   string               `json:"channel_id"`
	GuildID     string               `json:"guild_id,omitempty"`
	Content     string               `json:"content"`
	Mentions    []message.User       `json:"mentions,omitempty"`
	Attachments []message.Attachment `json:"attachments,omitempty"`
}

func (c chatRequest) inbound() (message.Inbound, error) {
	if strings.TrimSpace(c.UserID) == "" || strings.TrimSpace(c.ChannelID) == "" {
		return message.Inbound{}, errors.New("user_id and channel_id are required")
	}
	return message.Inbound{
		Author:      message.User{ID: c.UserID, Name: c.UserName},
		ChannelID:   c.ChannelID,
		GuildID:     c.GuildID,
		Content:     c.Content,
		Mentions:    c.Mentions,
		Attachments: c.Attachments,
	}, nil
}

func (g *Gateway) readChat(w http.ResponseWriter, r *http.Request) (message.Inbound, bool) {
	if g.responder == nil {
		unavailable(w, "bot")
		return message.Inbound{}, false
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return message.Inbound{}, false
	}
	in, err := req.inbound()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return message.Inbound{}, false
	}
	return in, true
}

// handleContextPreview shows the memory context and full prompt the bot
// would use for a message, with token estimates. Nothing is recorded.
func (g *Gateway) handleContextPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := g.readChat(w, r)
		if !ok {
			return
		}
		preview, err := g.responder.Preview(r.Context(), in)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

// handleChat runs a message through the bot exactly as if it came from
// Discord, recording the turn.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := g.readChat(w, r)
		if !ok {
			return
		}
		reply, err := g.responder.Handle(r.Context(), in)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, reply)
		case errors.Is(err, bot.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, bot.ErrNotRunning):
			writeError(w, http.StatusConflict, err)
		case provider.IsRetryable(err):
			writeError(w, http.StatusServiceUnavailable, err)
		default:
			writeError(w, http.StatusBadGateway, err)
		}
	}
}
