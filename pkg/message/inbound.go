package message

import (
	"strings"
	"time"
)

// Inbound is a user message received from the chat platform.
type Inbound struct {
	ID          string       `json:"id,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Author      User         `json:"author"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"`
	Content     string       `json:"content"`
	Mentions    []User       `json:"mentions,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Guild returns the guild ID, or DirectMessageGuild when the message was
// sent outside a guild.
func (m *Inbound) Guild() string {
	if m.GuildID == "" {
		return DirectMessageGuild
	}
	return m.GuildID
}

// IsDirectMessage reports whether the message was sent as a direct message.
func (m *Inbound) IsDirectMessage() bool {
	return m.Guild() == DirectMessageGuild
}

// Images returns the attachments that are images.
func (m *Inbound) Images() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if a.IsImage() {
			out = append(out, a)
		}
	}
	return out
}

// MentionedUsers returns the mentioned users other than the author and
// excluding botID, deduplicated in mention order.
func (m *Inbound) MentionedUsers(botID string) []User {
	seen := make(map[string]struct{}, len(m.Mentions))
	var out []User
	for _, u := range m.Mentions {
		if u.ID == "" || u.ID == m.Author.ID || (botID != "" && u.ID == botID) {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, u)
	}
	return out
}

// IsEmpty reports whether the message has neither text nor attachments.
func (m *Inbound) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == "" && len(m.Attachments) == 0
}
