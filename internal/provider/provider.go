// Package provider defines the model-invocation capabilities the bot
// depends on. Concrete clients live outside this package and register
// themselves as services; the bot only sees these interfaces.
package provider

import (
	"context"

	"github.com/flemzord/membot/pkg/message"
)

// Completer turns a fully built prompt into the model's reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Describer produces a text description of an image attachment.
type Describer interface {
	Describe(ctx context.Context, image message.Attachment) (string, error)
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func(ctx context.Context, image message.Attachment) (string, error)

// Describe implements Describer.
func (f DescriberFunc) Describe(ctx context.Context, image message.Attachment) (string, error) {
	return f(ctx, image)
}

// Unavailable is the Completer and Describer used when no model client is
// configured. Every call fails with ErrNoProvider.
type Unavailable struct{}

// Complete implements Completer.
func (Unavailable) Complete(context.Context, string) (string, error) {
	return "", ErrNoProvider
}

// Describe implements Describer.
func (Unavailable) Describe(context.Context, message.Attachment) (string, error) {
	return "", ErrNoProvider
}

// Interface guards.
var (
	_ Completer = Unavailable{}
	_ Describer = Unavailable{}
	_ Completer = CompleterFunc(nil)
	_ Describer = DescriberFunc(nil)
)
