// Package ctxengine assembles the memory context injected into a prompt:
// recent conversation turns, facts about the requesting user and facts about
// the users they mention, filtered by decay and bounded by count caps.
package ctxengine

import (
	"log/slog"
	"time"
)

// Section headings rendered in the assembled context.
const (
	conversationHeading = "Recent conversation:"
	factsHeadingFormat  = "Known facts about %s:"
	mentionedFormat     = "Known facts about %s (mentioned):"
	defaultBotName      = "Assistant"
)

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the time source used to age items.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the assembler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}
