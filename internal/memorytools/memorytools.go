// Package memorytools exposes the memory store to MCP clients, so an
// operator or another agent can inspect and curate what the bot remembers.
package memorytools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	ctxengine "github.com/flemzord/membot/internal/context"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/pkg/message"
)

const serverName = "membot-memory"

// Tool names.
const (
	ToolGetFacts   = "memory_get_facts"
	ToolRecordFact = "memory_record_fact"
	ToolDeleteFact = "memory_delete_fact"
	ToolClearUser  = "memory_clear_user"
	ToolStats      = "memory_stats"
	ToolContext    = "memory_context"
)

// reporterName marks facts recorded through MCP.
const reporterName = "mcp"

// Server serves the memory tools.
type Server struct {
	memory    *memory.Service
	settings  settings.Source
	assembler *ctxengine.Assembler
	logger    *slog.Logger
	mcp       *server.MCPServer
}

// New builds the MCP server over mem. Settings drive the memory_context
// tool the same way they drive real prompts.
func New(mem *memory.Service, src settings.Source, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		memory:    mem,
		settings:  src,
		assembler: ctxengine.NewAssembler(mem, ctxengine.WithLogger(logger)),
		logger:    logger.With("component", "memorytools"),
		mcp:       server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}
	s.register()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves newline-delimited JSON-RPC on in/out until ctx ends
// or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool(ToolGetFacts,
		mcp.WithDescription("List what the bot remembers about a user in a guild, newest first."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Platform user ID")),
		mcp.WithString("guild_id", mcp.Required(), mcp.Description(`Guild ID, or "dm" for direct messages`)),
		mcp.WithNumber("limit", mcp.Description("Maximum number of facts (default 20)")),
	), s.getFacts)

	s.mcp.AddTool(mcp.NewTool(ToolRecordFact,
		mcp.WithDescription("Remember a fact about a user. Oldest facts are evicted past the per-user cap."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Platform user ID")),
		mcp.WithString("guild_id", mcp.Required(), mcp.Description(`Guild ID, or "dm"`)),
		mcp.WithString("fact_type", mcp.Required(), mcp.Description(`Free-form tag such as "likes" or "preference"`)),
		mcp.WithString("value", mcp.Required(), mcp.Description("The fact itself")),
		mcp.WithNumber("confidence", mcp.Description("Confidence from 0 to 10 (default 1)")),
	), s.recordFact)

	s.mcp.AddTool(mcp.NewTool(ToolDeleteFact,
		mcp.WithDescription("Delete one fact by ID."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Fact ID")),
	), s.deleteFact)

	s.mcp.AddTool(mcp.NewTool(ToolClearUser,
		mcp.WithDescription("Forget everything about a user in a guild: facts and conversation history."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Platform user ID")),
		mcp.WithString("guild_id", mcp.Required(), mcp.Description(`Guild ID, or "dm"`)),
		mcp.WithDestructiveHintAnnotation(true),
	), s.clearUser)

	s.mcp.AddTool(mcp.NewTool(ToolStats,
		mcp.WithDescription("Count stored facts, entries and users."),
		mcp.WithString("guild_id", mcp.Description("Restrict to one guild")),
	), s.stats)

	s.mcp.AddTool(mcp.NewTool(ToolContext,
		mcp.WithDescription("Render the memory context the bot would add to a prompt for this user and channel."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Platform user ID")),
		mcp.WithString("guild_id", mcp.Required(), mcp.Description(`Guild ID, or "dm"`)),
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("Channel ID")),
		mcp.WithString("user_name", mcp.Description("Display name of the user")),
		mcp.WithString("mentions", mcp.Description("Comma-separated user IDs mentioned in the message")),
	), s.context)
}

func (s *Server) getFacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, guildID, err := partitionArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", settings.DefaultMaxUserFacts)
	facts := s.memory.GetFacts(ctx, userID, guildID, limit)
	if facts == nil {
		facts = []memory.Fact{}
	}
	return jsonResult(facts)
}

func (s *Server) recordFact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, guildID, err := partitionArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fact, res := s.memory.AddFact(ctx, memory.FactInput{
		UserID:       userID,
		GuildID:      guildID,
		FactType:     req.GetString("fact_type", ""),
		Value:        req.GetString("value", ""),
		Confidence:   req.GetFloat("confidence", memory.DefaultImportance),
		ReporterName: reporterName,
	})
	if !res.OK {
		return mcp.NewToolResultError(res.Message()), nil
	}
	s.logger.Info("fact recorded", "fact_id", fact.ID, "user_id", userID, "guild_id", guildID)
	return jsonResult(fact)
}

func (s *Server) deleteFact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}
	if res := s.memory.DeleteFact(ctx, int64(id)); !res.OK {
		return mcp.NewToolResultError(res.Message()), nil
	}
	return mcp.NewToolResultText("deleted"), nil
}

func (s *Server) clearUser(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, guildID, err := partitionArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := s.memory.ClearUser(ctx, userID, guildID); !res.OK {
		return mcp.NewToolResultError(res.Message()), nil
	}
	s.logger.Info("user memory cleared", "user_id", userID, "guild_id", guildID)
	return mcp.NewToolResultText("cleared"), nil
}

func (s *Server) stats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, res := s.memory.Stats(ctx, req.GetString("guild_id", ""))
	if !res.OK {
		return mcp.NewToolResultError(res.Message()), nil
	}
	return jsonResult(st)
}

func (s *Server) context(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, guildID, err := partitionArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	channelID, err := req.RequireString("channel_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var mentioned []message.User
	for id := range strings.SplitSeq(req.GetString("mentions", ""), ",") {
		if id = strings.TrimSpace(id); id != "" {
			mentioned = append(mentioned, message.User{ID: id})
		}
	}

	snap := s.settings.Snapshot()
	text := s.assembler.Assemble(ctx, ctxengine.Request{
		UserID:    userID,
		UserName:  req.GetString("user_name", ""),
		ChannelID: channelID,
		GuildID:   guildID,
		Mentioned: mentioned,
	}, snap.Memory, snap.BotName)
	if text == "" {
		text = "(no memory context)"
	}
	return mcp.NewToolResultText(text), nil
}

func partitionArgs(req mcp.CallToolRequest) (userID, guildID string, err error) {
	if userID, err = req.RequireString("user_id"); err != nil {
		return "", "", err
	}
	if guildID, err = req.RequireString("guild_id"); err != nil {
		return "", "", err
	}
	return userID, guildID, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
