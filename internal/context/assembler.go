package ctxengine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/pkg/message"
)

// Memory is the subset of memory.Service the assembler reads from and
// writes turns back to. Implementations never fail: storage errors show up
// as empty results.
type Memory interface {
	RecentTurns(ctx context.Context, p memory.Partition, limit int) []memory.Entry
	GetFacts(ctx context.Context, userID, guildID string, limit int) []memory.Fact
	RecordTurn(ctx context.Context, t memory.Turn) memory.Result
}

var _ Memory = (*memory.Service)(nil)

// Request identifies the turn being answered.
type Request struct {
	UserID    string
	UserName  string
	ChannelID string
	GuildID   string

	// Mentioned lists the users referenced by the message, in mention order.
	Mentioned []message.User
}

func (r Request) partition() memory.Partition {
	return memory.Partition{UserID: r.UserID, ChannelID: r.ChannelID, GuildID: r.GuildID}
}

func (r Request) displayName() string {
	if r.UserName != "" {
		return r.UserName
	}
	return r.UserID
}

// Assembler builds the memory context block for one prompt.
type Assembler struct {
	mem    Memory
	now    func() time.Time
	logger *slog.Logger
}

// NewAssembler creates an Assembler reading from mem.
func NewAssembler(mem Memory, opts ...Option) *Assembler {
	a := &Assembler{
		mem:    mem,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble renders the context for req under cfg. Sections appear in a
// fixed order: conversation history, requester facts, mentioned-user
// facts. Empty sections are omitted, and an empty string is returned when
// memory is disabled or nothing qualifies.
func (a *Assembler) Assemble(ctx context.Context, req Request, cfg settings.Memory, botName string) string {
	if !cfg.Enabled {
		return ""
	}
	if botName == "" {
		botName = defaultBotName
	}
	now := a.now()

	sections := make([]string, 0, 2+len(req.Mentioned))
	if s := a.conversation(ctx, req, cfg, botName, now); s != "" {
		sections = append(sections, s)
	}
	if s := a.facts(ctx, req.UserID, req.GuildID, cfg.MaxUserFacts, cfg.Decay, now,
		fmt.Sprintf(factsHeadingFormat, req.displayName())); s != "" {
		sections = append(sections, s)
	}
	if cfg.IncludeMentionedUsers {
		for _, u := range mentioned(req) {
			if s := a.facts(ctx, u.ID, req.GuildID, cfg.MaxMentionedUserFacts, cfg.Decay, now,
				fmt.Sprintf(mentionedFormat, u.DisplayName())); s != "" {
				sections = append(sections, s)
			}
		}
	}

	a.logger.Debug("context assembled",
		"user_id", req.UserID,
		"guild_id", req.GuildID,
		"sections", len(sections),
	)
	return strings.Join(sections, "\n\n")
}

// conversation renders the most recent turns of the partition in
// chronological order.
func (a *Assembler) conversation(ctx context.Context, req Request, cfg settings.Memory, botName string, now time.Time) string {
	entries := a.mem.RecentTurns(ctx, req.partition(), cfg.ContextMessageCount)
	if len(entries) == 0 {
		return ""
	}
	slices.Reverse(entries)

	var b strings.Builder
	for _, e := range entries {
		if !memory.Include(memory.ImportanceOrDefault(e.Importance), memory.AgeDays(now, e.CreatedAt), cfg.Decay) {
			continue
		}
		speaker := e.UserName
		if speaker == "" {
			speaker = req.displayName()
		}
		fmt.Fprintf(&b, "\n%s: %s\n%s: %s", speaker, e.UserMessage, botName, e.BotResponse)
	}
	if b.Len() == 0 {
		return ""
	}
	return conversationHeading + b.String()
}

// facts renders up to limit facts about userID under heading.
func (a *Assembler) facts(ctx context.Context, userID, guildID string, limit int, decay settings.Decay, now time.Time, heading string) string {
	if userID == "" || limit <= 0 {
		return ""
	}
	facts := a.mem.GetFacts(ctx, userID, guildID, limit)

	var b strings.Builder
	for _, f := range facts {
		if !memory.Include(f.Confidence, memory.AgeDays(now, f.CreatedAt), decay) {
			continue
		}
		fmt.Fprintf(&b, "\n- %s: %s", f.FactType, f.Value)
	}
	if b.Len() == 0 {
		return ""
	}
	return heading + b.String()
}

// mentioned returns the distinct mentioned users other than the requester,
// in mention order.
func mentioned(req Request) []message.User {
	seen := make(map[string]struct{}, len(req.Mentioned))
	out := make([]message.User, 0, len(req.Mentioned))
	for _, u := range req.Mentioned {
		if u.ID == "" || u.ID == req.UserID {
			continue
		}
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// Remember writes the completed exchange back to memory. The result is
// informational: a failed write never affects the reply.
func (a *Assembler) Remember(ctx context.Context, req Request, userMessage, reply string) memory.Result {
	res := a.mem.RecordTurn(ctx, memory.Turn{
		UserID:      req.UserID,
		ChannelID:   req.ChannelID,
		GuildID:     req.GuildID,
		UserMessage: userMessage,
		BotResponse: reply,
		UserName:    req.UserName,
	})
	if !res.OK {
		a.logger.Debug("turn not remembered", "user_id", req.UserID, "reason", res.Message())
	}
	return res
}
