package message

import "testing"

func TestInbound_Guild(t *testing.T) {
	t.Parallel()

	m := &Inbound{GuildID: "g1"}
	if m.Guild() != "g1" || m.IsDirectMessage() {
		t.Errorf("guild message: Guild() = %q, IsDirectMessage() = %v", m.Guild(), m.IsDirectMessage())
	}

	dm := &Inbound{}
	if dm.Guild() != DirectMessageGuild || !dm.IsDirectMessage() {
		t.Errorf("direct message: Guild() = %q, IsDirectMessage() = %v", dm.Guild(), dm.IsDirectMessage())
	}
}

func TestInbound_MentionedUsers(t *testing.T) {
	t.Parallel()

	m := &Inbound{
		Author: User{ID: "u1", Name: "Alice"},
		Mentions: []User{
			{ID: "u2", Name: "Bob"},
			{ID: "u1", Name: "Alice"},
			{ID: "bot", Name: "membot"},
			{ID: "u3", Name: "Carol"},
			{ID: "u2", Name: "Bob"},
			{ID: ""},
		},
	}

	got := m.MentionedUsers("bot")
	if len(got) != 2 {
		t.Fatalf("MentionedUsers() returned %d users, want 2: %+v", len(got), got)
	}
	if got[0].ID != "u2" || got[1].ID != "u3" {
		t.Errorf("MentionedUsers() order = [%s %s], want [u2 u3]", got[0].ID, got[1].ID)
	}
}

func TestInbound_Images(t *testing.T) {
	t.Parallel()

	m := &Inbound{Attachments: []Attachment{
		{Filename: "a.png"},
		{Filename: "b.txt"},
		{MIMEType: "image/gif"},
	}}
	if got := len(m.Images()); got != 2 {
		t.Errorf("Images() = %d attachments, want 2", got)
	}
}

func TestInbound_IsEmpty(t *testing.T) {
	t.Parallel()

	if !(&Inbound{Content: "   "}).IsEmpty() {
		t.Error("whitespace-only message should be empty")
	}
	if (&Inbound{Attachments: []Attachment{{Filename: "a.png"}}}).IsEmpty() {
		t.Error("message with an attachment should not be empty")
	}
}
