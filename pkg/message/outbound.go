package message

// Outbound is a reply ready to be sent back to the platform. Chunks holds
// the text split to the platform's length limit, in send order.
type Outbound struct {
	ChannelID string   `json:"channel_id"`
	ReplyToID string   `json:"reply_to_id,omitempty"`
	Text      string   `json:"text"`
	Chunks    []string `json:"chunks"`
}

// NewReply builds an Outbound reply to m, split for Discord.
func NewReply(m *Inbound, text string) Outbound {
	return Outbound{
		ChannelID: m.ChannelID,
		ReplyToID: m.ID,
		Text:      text,
		Chunks:    SplitText(text, ChunkConfig{MaxLength: DiscordMaxLength}),
	}
}
