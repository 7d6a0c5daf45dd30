package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/security"
)

// window reads page and page_size, applying listing defaults.
func window(r *http.Request) (memory.Window, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return memory.Window{}, err
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		return memory.Window{}, err
	}
	return memory.NewWindow(page, size), nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// handleListFacts lists facts filtered by guild_id, user_id and type.
func (g *Gateway) handleListFacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memory == nil {
			unavailable(w, "memory")
			return
		}
		win, err := window(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		q := r.URL.Query()
		page, res := g.memory.ListFacts(r.Context(), memory.FactQuery{
			GuildID:  q.Get("guild_id"),
			UserID:   q.Get("user_id"),
			FactType: q.Get("type"),
			Window:   win,
		})
		if !res.OK {
			writeResult(w, res)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// factRequest is the body of POST /api/memory/facts.
type factRequest struct {
	UserID     string  `json:"user_id"`
	GuildID    string  `json:"guild_id"`
	FactType   string  `json:"fact_type"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	ReporterID string  `json:"reporter_id,omitempty"`
}

type factResponse struct {
	mutationResponse
	Fact *memory.Fact `json:"fact,omitempty"`
}

// handleCreateFact records a fact on behalf of an operator. Caps apply
// exactly as for facts learned in conversation.
func (g *Gateway) handleCreateFact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memory == nil {
			unavailable(w, "memory")
			return
		}
		var req factRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		fact, res := g.memory.AddFact(r.Context(), memory.FactInput{
			UserID:       req.UserID,
			GuildID:      req.GuildID,
			FactType:     req.FactType,
			Value:        req.Value,
			Confidence:   req.Confidence,
			ReporterID:   req.ReporterID,
			ReporterName: "admin",
		})
		if !res.OK {
			writeResult(w, res)
			return
		}
		g.audit.Log(security.AuditEvent{
			Type:    security.EventFactCreate,
			Actor:   clientIP(r),
			UserID:  fact.UserID,
			GuildID: fact.GuildID,
			Target:  strconv.FormatInt(fact.ID, 10),
			Detail:  fact.FactType,
		})
		writeJSON(w, http.StatusCreated, factResponse{
			mutationResponse: mutationResponse{Success: true},
			Fact:             &fact,
		})
	}
}

// handleDeleteFact deletes one fact by id.
func (g *Gateway) handleDeleteFact() http.HandlerFunc {
	return g.deleteByID(security.EventFactDelete, func(r *http.Request, id int64) memory.Result {
		return g.memory.DeleteFact(r.Context(), id)
	})
}

// handleListEntries lists entries filtered by guild_id, user_id,
// channel_id and type.
func (g *Gateway) handleListEntries() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memory == nil {
			unavailable(w, "memory")
			return
		}
		win, err := window(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		q := r.URL.Query()
		typ := memory.EntryType(q.Get("type"))
		if typ != "" && !typ.Valid() {
			writeError(w, http.StatusBadRequest, errors.New("invalid type: "+string(typ)))
			return
		}
		page, res := g.memory.ListEntries(r.Context(), memory.EntryQuery{
			GuildID:   q.Get("guild_id"),
			UserID:    q.Get("user_id"),
			ChannelID: q.Get("channel_id"),
			Type:      typ,
			Window:    win,
		})
		if !res.OK {
			writeResult(w, res)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

// handleDeleteEntry deletes one memory entry by id.
func (g *Gateway) handleDeleteEntry() http.HandlerFunc {
	return g.deleteByID(security.EventEntryDelete, func(r *http.Request, id int64) memory.Result {
		return g.memory.DeleteEntry(r.Context(), id)
	})
}

func (g *Gateway) deleteByID(event security.EventType, del func(*http.Request, int64) memory.Result) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memory == nil {
			unavailable(w, "memory")
			return
		}
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res := del(r, id)
		if res.OK {
			g.audit.Log(security.AuditEvent{
				Type:   event,
				Actor:  clientIP(r),
				Target: strconv.FormatInt(id, 10),
			})
		}
		writeResult(w, res)
	}
}

// handleClearUser erases every fact and entry of a user in one guild.
// guild_id is required so one call can never wipe a user everywhere.
func (g *Gateway) handleClearUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memory == nil {
			unavailable(w, "memory")
			return
		}
		userID := chi.URLParam(r, "userID")
		guildID := strings.TrimSpace(r.URL.Query().Get("guild_id"))
		if guildID == "" {
			writeError(w, http.StatusBadRequest, errors.New("guild_id is required"))
			return
		}

		res := g.memory.ClearUser(r.Context(), userID, guildID)
		if res.OK {
			g.audit.Log(security.AuditEvent{
				Type:    security.EventUserClear,
				Actor:   clientIP(r),
				UserID:  userID,
				GuildID: guildID,
			})
		}
		writeResult(w, res)
	}
}

// handleStats aggregates stored memory, optionally for one guild.
func (g *Gateway) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.memory == nil {
			unavailable(w, "memory")
			return
		}
		stats, res := g.memory.Stats(r.Context(), r.URL.Query().Get("guild_id"))
		if !res.OK {
			writeResult(w, res)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
