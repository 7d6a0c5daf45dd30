// Package bot runs the message path: it turns an inbound Discord message
// into a reply using memory context, the persona and the completion
// provider, and records the exchange for later turns.
package bot

import "errors"

// Sentinel errors for bot operations.
var (
	// ErrNotRunning indicates the runtime is stopped and rejects messages.
	ErrNotRunning = errors.New("bot: not running")

	// ErrAlreadyRunning is returned by Start when the runtime is running.
	ErrAlreadyRunning = errors.New("bot: already running")

	// ErrEmptyMessage indicates a message with neither text nor images.
	ErrEmptyMessage = errors.New("bot: empty message")
)
