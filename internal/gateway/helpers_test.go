package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/membot/internal/bot"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/provider/providertest"
	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/internal/telemetry"
)

// testEnv is a gateway wired to in-memory services.
type testEnv struct {
	gw        *Gateway
	handler   http.Handler
	memory    *memory.Service
	settings  *settings.Store
	completer *providertest.MockCompleter

	mu     sync.Mutex
	events []security.AuditEvent
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := settings.NewStore(settings.Default())
	mem := memory.NewService(memory.NewInMemoryStore(), st, memory.WithLogger(logger))
	completer := &providertest.MockCompleter{Reply: "pong"}
	metrics := telemetry.NewMetrics()
	responder := bot.NewResponder(bot.Config{
		Settings:  st,
		Memory:    mem,
		Completer: completer,
		Metrics:   metrics,
		Logger:    logger,
	})
	t.Cleanup(func() { _ = responder.Close(context.Background()) })
	if err := responder.Runtime().Start(); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{memory: mem, settings: st, completer: completer}

	cfg := Config{}
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.defaults()

	env.gw = &Gateway{
		config:  cfg,
		logger:  logger,
		limiter: security.NewRateLimiter(cfg.RateLimit),
		audit: security.NewAuditLogger(security.AuditLoggerConfig{
			OnEvent: func(e security.AuditEvent) {
				env.mu.Lock()
				env.events = append(env.events, e)
				env.mu.Unlock()
			},
		}),
		memory:    mem,
		settings:  st,
		metrics:   metrics,
		responder: responder,
	}
	env.handler = env.gw.buildRouter()
	return env
}

func (e *testEnv) auditTypes() []security.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]security.EventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

// do sends a request through the router. body is JSON-encoded when not nil.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if len(doc.Content) == 0 {
		t.Fatal("empty YAML document")
	}
	return doc.Content[0]
}
