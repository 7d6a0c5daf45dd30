// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/membot/internal/provider"
	"github.com/flemzord/membot/pkg/message"
)

// MockCompleter is a configurable test double for provider.Completer.
// When CompleteFunc is nil, Complete returns Reply. Every prompt is
// recorded. Safe for concurrent use.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	Reply        string

	mu      sync.Mutex
	prompts []string
}

// Complete records the prompt and delegates to CompleteFunc.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return m.Reply, nil
}

// Prompts returns a copy of every prompt received so far.
func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Calls returns the number of Complete calls.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// MockDescriber is a configurable test double for provider.Describer.
type MockDescriber struct {
	DescribeFunc func(ctx context.Context, image message.Attachment) (string, error)

	mu    sync.Mutex
	Calls int
}

// Describe delegates to DescribeFunc and tracks call count.
func (m *MockDescriber) Describe(ctx context.Context, image message.Attachment) (string, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	return m.DescribeFunc(ctx, image)
}

// Interface guards.
var (
	_ provider.Completer = (*MockCompleter)(nil)
	_ provider.Describer = (*MockDescriber)(nil)
)
