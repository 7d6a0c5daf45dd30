package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/memory/memorytest"
	"github.com/flemzord/membot/internal/provider"
	"github.com/flemzord/membot/internal/provider/providertest"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/pkg/message"
)

type fixture struct {
	responder *Responder
	memory    *memory.Service
	completer *providertest.MockCompleter
	settings  *settings.Store
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	st := settings.NewStore(settings.Default())
	mem := memory.NewService(memory.NewInMemoryStore(), st)
	completer := &providertest.MockCompleter{Reply: "  Hello there!  "}

	cfg := Config{
		Settings:  st,
		Memory:    mem,
		Completer: completer,
		BotID:     "bot",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	r := NewResponder(cfg)
	if err := r.Runtime().Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return &fixture{responder: r, memory: mem, completer: completer, settings: st}
}

func inbound(text string) message.Inbound {
	return message.Inbound{
		ID:        "m1",
		Author:    message.User{ID: "u1", Name: "Alice"},
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   text,
	}
}

func TestHandle_RepliesAndRemembers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	reply, err := f.responder.Handle(ctx, inbound("hi"))
	if err != nil {
		t.Fatalf("Handle() = %v", err)
	}
	if reply.Outbound.Text != "Hello there!" {
		t.Errorf("reply text = %q", reply.Outbound.Text)
	}
	if reply.Outbound.ReplyToID != "m1" || reply.Outbound.ChannelID != "c1" {
		t.Errorf("outbound routing = %+v", reply.Outbound)
	}
	if reply.TurnID == "" {
		t.Error("missing turn id")
	}

	turns := f.memory.RecentTurns(ctx, memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}, 10)
	if len(turns) != 1 || turns[0].UserMessage != "hi" || turns[0].BotResponse != "Hello there!" {
		t.Fatalf("stored turns = %+v", turns)
	}

	// The second turn sees the first in its prompt.
	if _, err := f.responder.Handle(ctx, inbound("again")); err != nil {
		t.Fatal(err)
	}
	prompts := f.completer.Prompts()
	if !strings.Contains(prompts[1], "Recent conversation:\nAlice: hi\nmembot: Hello there!") {
		t.Errorf("second prompt lacks history:\n%s", prompts[1])
	}
	if !strings.HasSuffix(prompts[1], "User (Alice): again\nAssistant:") {
		t.Errorf("second prompt ending:\n%s", prompts[1])
	}
}

func TestHandle_RejectsWhenStopped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_ = f.responder.Runtime().Stop()

	if _, err := f.responder.Handle(context.Background(), inbound("hi")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Handle() = %v, want ErrNotRunning", err)
	}
	if f.completer.Calls() != 0 {
		t.Error("completer called while stopped")
	}
}

func TestHandle_RejectsEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.responder.Handle(context.Background(), inbound("   ")); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Handle() = %v, want ErrEmptyMessage", err)
	}
}

func TestHandle_CompletionErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream down")
	f := newFixture(t, func(c *Config) {
		c.Completer = provider.CompleterFunc(func(context.Context, string) (string, error) { return "", boom })
	})

	_, err := f.responder.Handle(context.Background(), inbound("hi"))
	if !errors.Is(err, boom) {
		t.Fatalf("Handle() = %v, want wrapped upstream error", err)
	}
	if got := f.memory.GetAllEntries(context.Background(), ""); len(got) != 0 {
		t.Errorf("failed turn was stored: %+v", got)
	}
	if st := f.responder.Runtime().Status(); st.Errors != 1 {
		t.Errorf("Errors = %d, want 1", st.Errors)
	}
}

func TestHandle_StorageFailureStillReplies(t *testing.T) {
	t.Parallel()

	st := settings.NewStore(settings.Default())
	broken := memory.NewService(&memorytest.FailingStore{Err: errors.New("disk gone")}, st)
	f := newFixture(t, func(c *Config) { c.Memory = broken; c.Settings = st })

	reply, err := f.responder.Handle(context.Background(), inbound("hi"))
	if err != nil {
		t.Fatalf("Handle() = %v, want reply despite storage failure", err)
	}
	if reply.Outbound.Text != "Hello there!" {
		t.Errorf("reply = %q", reply.Outbound.Text)
	}
}

func TestHandle_NoStorageBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *Config) { c.Memory = nil })
	if _, err := f.responder.Handle(context.Background(), inbound("hi")); err != nil {
		t.Fatalf("Handle() = %v", err)
	}
}

func TestHandle_MemoryDisabledSkipsContextAndStorage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if err := f.settings.Update(func(s *settings.Settings) { s.Memory.Enabled = false }); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	_, _ = f.responder.Handle(ctx, inbound("one"))
	_, _ = f.responder.Handle(ctx, inbound("two"))

	if got := f.memory.GetAllEntries(ctx, ""); len(got) != 0 {
		t.Errorf("entries stored with memory disabled: %d", len(got))
	}
	if strings.Contains(f.completer.Prompts()[1], "Recent conversation") {
		t.Error("context injected with memory disabled")
	}
}

func TestHandle_ImageDescriptions(t *testing.T) {
	t.Parallel()

	describer := &providertest.MockDescriber{
		DescribeFunc: func(_ context.Context, img message.Attachment) (string, error) {
			if img.Filename == "bad.png" {
				return "", errors.New("vision down")
			}
			return "a cat on a sofa", nil
		},
	}
	f := newFixture(t, func(c *Config) { c.Describer = describer })

	in := inbound("look")
	in.Attachments = []message.Attachment{
		{URL: "https://cdn/cat.png", MIMEType: "image/png", Filename: "cat.png"},
		{URL: "https://cdn/bad.png", MIMEType: "image/png", Filename: "bad.png"},
		{URL: "https://cdn/notes.txt", MIMEType: "text/plain", Filename: "notes.txt"},
	}

	if _, err := f.responder.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if describer.Calls != 2 {
		t.Errorf("describer calls = %d, want 2", describer.Calls)
	}
	if p := f.completer.Prompts()[0]; !strings.Contains(p, "User (Alice): look\n[Image: a cat on a sofa]\nAssistant:") {
		t.Errorf("prompt:\n%s", p)
	}
}

type stubExtractor struct {
	mu    sync.Mutex
	calls []memory.Exchange
	out   []memory.Candidate
}

func (s *stubExtractor) Extract(_ context.Context, ex memory.Exchange) ([]memory.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ex)
	return s.out, nil
}

func TestHandle_AutoExtraction(t *testing.T) {
	t.Parallel()

	ex := &stubExtractor{out: []memory.Candidate{
		{FactType: "job", Value: "engineer", Confidence: 8},
		{FactType: "", Value: "invalid", Confidence: 5},
	}}
	f := newFixture(t, func(c *Config) { c.Extractor = ex })
	if err := f.settings.Update(func(s *settings.Settings) { s.Memory.AutoExtractFacts = true }); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := f.responder.Handle(ctx, inbound("I work as an engineer")); err != nil {
		t.Fatal(err)
	}

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.responder.Close(closeCtx); err != nil {
		t.Fatal(err)
	}

	facts := f.memory.GetFacts(ctx, "u1", "g1", 10)
	if len(facts) != 1 || facts[0].FactType != "job" || facts[0].Value != "engineer" {
		t.Fatalf("facts = %+v", facts)
	}
	if facts[0].ReporterName != extractionReporter {
		t.Errorf("reporter = %q", facts[0].ReporterName)
	}
	if len(ex.calls) != 1 || ex.calls[0].BotResponse != "Hello there!" {
		t.Errorf("extractor calls = %+v", ex.calls)
	}
}

func TestHandle_MentionedUserFacts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	if res := f.memory.RecordFact(ctx, memory.FactInput{
		UserID: "u2", GuildID: "g1", FactType: "hobby", Value: "chess", Confidence: 6,
	}); !res.OK {
		t.Fatal(res.Err)
	}

	in := inbound("what does Bob like?")
	in.Mentions = []message.User{{ID: "u2", Name: "Bob"}, {ID: "bot", Name: "membot"}}
	if _, err := f.responder.Handle(ctx, in); err != nil {
		t.Fatal(err)
	}

	p := f.completer.Prompts()[0]
	if !strings.Contains(p, "Known facts about Bob (mentioned):\n- hobby: chess") {
		t.Errorf("prompt lacks mentioned facts:\n%s", p)
	}
	if strings.Contains(p, "membot (mentioned)") {
		t.Error("bot itself treated as mentioned user")
	}
}

func TestHandle_SerializesSamePartition(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	inFlight, peak := 0, 0
	f := newFixture(t, func(c *Config) {
		c.Completer = provider.CompleterFunc(func(context.Context, string) (string, error) {
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return "ok", nil
		})
	})

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			_, _ = f.responder.Handle(context.Background(), inbound("hi"))
		})
	}
	wg.Wait()

	if peak != 1 {
		t.Errorf("peak concurrent turns in one partition = %d, want 1", peak)
	}
}

func TestHandle_DirectMessageGuild(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	in := inbound("hi")
	in.GuildID = ""

	if _, err := f.responder.Handle(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	entries := f.memory.GetAllEntries(context.Background(), message.DirectMessageGuild)
	if len(entries) != 1 {
		t.Errorf("DM entries = %d, want 1", len(entries))
	}
}

func TestPreview_DoesNotCallModelOrRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	if res := f.memory.RecordFact(ctx, memory.FactInput{
		UserID: "u1", GuildID: "g1", FactType: "hobby", Value: "chess", Confidence: 8,
	}); !res.OK {
		t.Fatalf("RecordFact: %v", res.Err)
	}
	_ = f.responder.Runtime().Stop()

	p, err := f.responder.Preview(ctx, inbound("what do I like?"))
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !strings.Contains(p.Context, "- hobby: chess") {
		t.Errorf("context missing fact: %q", p.Context)
	}
	if !strings.HasSuffix(p.Prompt, "User (Alice): what do I like?\nAssistant:") {
		t.Errorf("unexpected prompt tail: %q", p.Prompt)
	}
	if p.Budget.Total <= p.Budget.Message || p.Budget.Context == 0 {
		t.Errorf("unexpected budget: %+v", p.Budget)
	}
	if f.completer.Calls() != 0 {
		t.Error("preview must not call the model")
	}
	if turns := f.memory.RecentTurns(ctx, memory.Partition{UserID: "u1", ChannelID: "c1", GuildID: "g1"}, 10); len(turns) != 0 {
		t.Errorf("preview recorded %d turns", len(turns))
	}
}

func TestPreview_RejectsEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	if _, err := f.responder.Preview(context.Background(), inbound("  ")); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}
