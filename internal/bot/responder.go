package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ctxengine "github.com/flemzord/membot/internal/context"
	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/prompt"
	"github.com/flemzord/membot/internal/provider"
	"github.com/flemzord/membot/internal/settings"
	"github.com/flemzord/membot/internal/telemetry"
	"github.com/flemzord/membot/pkg/message"
)

const (
	defaultExtractionTimeout = 30 * time.Second
	extractionReporter       = "auto-extraction"
)

// Config groups the responder's collaborators. Settings is required;
// everything else has a usable default.
type Config struct {
	Settings  settings.Source
	Memory    *memory.Service
	Completer provider.Completer

	// Describer turns image attachments into text. Nil skips images.
	Describer provider.Describer

	// Extractor finds facts in completed turns when auto-extraction is
	// enabled. Nil disables extraction.
	Extractor memory.FactExtractor

	Runtime   *Runtime
	Metrics   *telemetry.Metrics
	Estimator ctxengine.TokenEstimator
	Logger    *slog.Logger

	// BotID is excluded from mentioned users.
	BotID string

	// ExtractionTimeout bounds one background extraction. Default 30s.
	ExtractionTimeout time.Duration
}

// Reply is the outcome of one handled message.
type Reply struct {
	TurnID   string           `json:"turn_id"`
	Outbound message.Outbound `json:"outbound"`
	Context  string           `json:"context,omitempty"`
	Tokens   int              `json:"estimated_prompt_tokens"`
}

// Responder answers inbound messages. It is safe for concurrent use;
// turns of the same partition are serialized.
type Responder struct {
	cfg       Config
	assembler *ctxengine.Assembler
	lanes     *LaneLock
	tracer    trace.Tracer
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewResponder creates a Responder from cfg.
func NewResponder(cfg Config) *Responder {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Estimator == nil {
		cfg.Estimator = ctxengine.NewCharEstimator(0)
	}
	if cfg.Completer == nil {
		cfg.Completer = provider.Unavailable{}
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.NewService(nil, cfg.Settings, memory.WithLogger(cfg.Logger))
	}
	if cfg.Runtime == nil {
		cfg.Runtime = NewRuntime(WithMemoryCheck(cfg.Memory.Available))
	}
	if cfg.ExtractionTimeout <= 0 {
		cfg.ExtractionTimeout = defaultExtractionTimeout
	}
	logger := cfg.Logger.With("component", "responder")
	return &Responder{
		cfg:       cfg,
		assembler: ctxengine.NewAssembler(cfg.Memory, ctxengine.WithLogger(logger)),
		lanes:     NewLaneLock(),
		tracer:    otel.Tracer("github.com/flemzord/membot/internal/bot"),
		logger:    logger,
	}
}

// Runtime returns the runtime gating the responder.
func (r *Responder) Runtime() *Runtime { return r.cfg.Runtime }

// Assembler returns the context assembler used for every turn.
func (r *Responder) Assembler() *ctxengine.Assembler { return r.assembler }

// Handle answers in. Completion errors are returned wrapped; memory errors
// never are, and at worst the reply is built without context.
func (r *Responder) Handle(ctx context.Context, in message.Inbound) (_ Reply, err error) {
	if !r.cfg.Runtime.Running() {
		r.cfg.Metrics.ObserveMessage(telemetry.OutcomeRejected)
		return Reply{}, ErrNotRunning
	}
	if in.IsEmpty() {
		r.cfg.Metrics.ObserveMessage(telemetry.OutcomeRejected)
		return Reply{}, ErrEmptyMessage
	}

	turnID := uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "bot.handle", trace.WithAttributes(
		attribute.String("turn_id", turnID),
		attribute.String("guild_id", in.Guild()),
		attribute.String("channel_id", in.ChannelID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.cfg.Runtime.countMessage(err)
	}()

	logger := r.logger.With("turn_id", turnID, "user_id", in.Author.ID, "guild_id", in.Guild())
	snap := r.cfg.Settings.Snapshot()
	req := r.request(in)

	partition := memory.Partition{UserID: req.UserID, ChannelID: req.ChannelID, GuildID: req.GuildID}
	r.lanes.Acquire(partition)
	defer r.lanes.Release(partition)

	text := r.withImageDescriptions(ctx, logger, in)

	var memContext string
	if snap.Memory.Enabled {
		memContext = r.assembler.Assemble(ctx, req, snap.Memory, snap.BotName)
	}

	built := prompt.Build(prompt.Input{
		BaseSystemPrompt: snap.SystemPrompt,
		Persona:          snap.Persona,
		Context:          memContext,
		UserMessage:      text,
		UserName:         req.UserName,
	})
	tokens := r.cfg.Estimator.Estimate(built)
	r.cfg.Metrics.ObservePromptTokens(tokens)
	span.SetAttributes(attribute.Int("prompt_tokens", tokens))

	start := time.Now()
	answer, err := r.cfg.Completer.Complete(ctx, built)
	r.cfg.Metrics.ObserveCompletion(time.Since(start))
	if err != nil {
		r.cfg.Metrics.ObserveMessage(telemetry.OutcomeError)
		logger.Error("completion failed", "error", err)
		return Reply{}, fmt.Errorf("bot: completion: %w", err)
	}
	answer = strings.TrimSpace(answer)

	if snap.Memory.Enabled {
		r.assembler.Remember(ctx, req, text, answer)
		if snap.Memory.AutoExtractFacts {
			r.extractLater(ctx, req, text, answer)
		}
	}

	r.cfg.Metrics.ObserveMessage(telemetry.OutcomeOK)
	logger.Debug("message answered", "prompt_tokens", tokens, "context_bytes", len(memContext))

	return Reply{
		TurnID:   turnID,
		Outbound: message.NewReply(&in, answer),
		Context:  memContext,
		Tokens:   tokens,
	}, nil
}

// Preview is what Handle would send to the model for a message.
type Preview struct {
	Context string                 `json:"context"`
	Prompt  string                 `json:"prompt"`
	Budget  ctxengine.PromptBudget `json:"budget"`
}

// Preview assembles the context and prompt for in without calling the
// model or recording anything. Image attachments are not described.
// It works whether or not the runtime is running.
func (r *Responder) Preview(ctx context.Context, in message.Inbound) (Preview, error) {
	if strings.TrimSpace(in.Content) == "" {
		return Preview{}, ErrEmptyMessage
	}
	snap := r.cfg.Settings.Snapshot()
	req := r.request(in)
	text := strings.TrimSpace(in.Content)

	var memContext string
	if snap.Memory.Enabled {
		memContext = r.assembler.Assemble(ctx, req, snap.Memory, snap.BotName)
	}
	built := prompt.Build(prompt.Input{
		BaseSystemPrompt: snap.SystemPrompt,
		Persona:          snap.Persona,
		Context:          memContext,
		UserMessage:      text,
		UserName:         req.UserName,
	})
	system := prompt.System(snap.SystemPrompt, snap.Persona)

	return Preview{
		Context: memContext,
		Prompt:  built,
		Budget:  ctxengine.EstimatePrompt(r.cfg.Estimator, system, memContext, text, built),
	}, nil
}

func (r *Responder) request(in message.Inbound) ctxengine.Request {
	return ctxengine.Request{
		UserID:    in.Author.ID,
		UserName:  in.Author.DisplayName(),
		ChannelID: in.ChannelID,
		GuildID:   in.Guild(),
		Mentioned: in.MentionedUsers(r.cfg.BotID),
	}
}

// withImageDescriptions appends one "[Image: ...]" line per described
// image to the message text. Failed descriptions are skipped.
func (r *Responder) withImageDescriptions(ctx context.Context, logger *slog.Logger, in message.Inbound) string {
	text := strings.TrimSpace(in.Content)
	if r.cfg.Describer == nil {
		return text
	}

	parts := []string{}
	if text != "" {
		parts = append(parts, text)
	}
	for _, img := range in.Images() {
		desc, err := r.cfg.Describer.Describe(ctx, img)
		if err != nil {
			logger.Warn("image description failed", "url", img.URL, "error", err)
			continue
		}
		if desc = strings.TrimSpace(desc); desc != "" {
			parts = append(parts, "[Image: "+desc+"]")
		}
	}
	return strings.Join(parts, "\n")
}

// extractLater runs fact extraction in the background. It outlives the
// request context but is bounded by ExtractionTimeout and awaited by Close.
func (r *Responder) extractLater(ctx context.Context, req ctxengine.Request, userMessage, answer string) {
	if r.cfg.Extractor == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	r.wg.Go(func() {
		ctx, cancel := context.WithTimeout(bg, r.cfg.ExtractionTimeout)
		defer cancel()
		r.extract(ctx, req, memory.Exchange{
			UserName:    req.UserName,
			UserMessage: userMessage,
			BotResponse: answer,
		})
	})
}

func (r *Responder) extract(ctx context.Context, req ctxengine.Request, ex memory.Exchange) {
	candidates, err := r.cfg.Extractor.Extract(ctx, ex)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("fact extraction failed", "user_id", req.UserID, "error", err)
		}
		return
	}

	var stored, rejected int
	for _, c := range candidates {
		res := r.cfg.Memory.RecordFact(ctx, memory.FactInput{
			UserID:       req.UserID,
			GuildID:      req.GuildID,
			FactType:     c.FactType,
			Value:        c.Value,
			Confidence:   c.Confidence,
			ReporterName: extractionReporter,
		})
		if res.OK {
			stored++
		} else {
			rejected++
		}
	}
	r.cfg.Metrics.ObserveExtraction(telemetry.OutcomeOK, stored)
	r.cfg.Metrics.ObserveExtraction(telemetry.OutcomeError, rejected)
	if stored > 0 {
		r.logger.Debug("facts extracted", "user_id", req.UserID, "stored", stored, "rejected", rejected)
	}
}

// Close waits for background extractions to finish or ctx to end.
func (r *Responder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bot: waiting for extractions: %w", ctx.Err())
	}
}
