// Package message defines the data contract between the chat platform
// adapter and the bot: inbound user messages and outbound replies.
package message

import "strings"

// DirectMessageGuild is the guild identifier used for direct messages,
// which have no guild of their own.
const DirectMessageGuild = "dm"

// DiscordMaxLength is the maximum number of bytes Discord accepts in a
// single message.
const DiscordMaxLength = 2000

// User identifies a platform user by ID and display name.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// DisplayName returns the user's name, falling back to the ID.
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.ID
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// IsImage reports whether the attachment is an image, judged by MIME type
// first and file extension otherwise.
func (a Attachment) IsImage() bool {
	if a.MIMEType != "" {
		return strings.HasPrefix(a.MIMEType, "image/")
	}
	name := strings.ToLower(a.Filename)
	if name == "" {
		name = strings.ToLower(a.URL)
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".webp"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
