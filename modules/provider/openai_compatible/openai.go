// Package openaicompat talks to any endpoint implementing the OpenAI chat
// completions API (OpenAI, Mistral, Groq, vLLM, LiteLLM, Ollama...) and
// publishes it as the bot's completer and, when a vision model is set,
// its image describer.
package openaicompat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/membot/internal/core"
	"github.com/flemzord/membot/internal/provider"
	"github.com/flemzord/membot/internal/security"
	"github.com/flemzord/membot/pkg/message"
	"gopkg.in/yaml.v3"
)

// Service names the module registers under.
const (
	ServiceCompleter = "provider.completer"
	ServiceDescriber = "provider.describer"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is an OpenAI-compatible completer and describer.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai_compatible",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	p.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: p.config.Timeout,
		},
	}

	if r, ok := core.Service[*security.Redactor](ctx, "security.redactor"); ok {
		r.AddLiteral(p.config.APIKey)
	}

	ctx.RegisterService(ServiceCompleter, provider.Completer(p))
	if p.config.VisionModel != "" {
		ctx.RegisterService(ServiceDescriber, provider.Describer(p))
	}
	p.logger.Info("openai-compatible provider provisioned",
		"base_url", p.config.BaseURL,
		"model", p.config.Model,
		"vision_model", p.config.VisionModel,
	)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Complete implements provider.Completer. The whole prompt is sent as a
// single user message.
func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	req := oaiRequest{
		Model:       p.config.Model,
		Messages:    []oaiMessage{{Role: "user", Content: prompt}},
		MaxTokens:   p.config.MaxTokens,
		Temperature: p.config.Temperature,
	}
	return p.chat(ctx, req)
}

// Describe implements provider.Describer using the vision model.
func (p *Provider) Describe(ctx context.Context, image message.Attachment) (string, error) {
	if p.config.VisionModel == "" {
		return "", provider.ErrNoProvider
	}
	req := oaiRequest{
		Model: p.config.VisionModel,
		Messages: []oaiMessage{{
			Role: "user",
			Content: []oaiContentPart{
				{Type: "text", Text: p.config.DescribePrompt},
				{Type: "image_url", ImageURL: &oaiImageURL{URL: image.URL}},
			},
		}},
		MaxTokens: p.config.MaxTokens,
	}
	return p.chat(ctx, req)
}

func (p *Provider) chat(ctx context.Context, req oaiRequest) (string, error) {
	resp, err := p.doRequest(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", provider.ErrProviderDown)
	}
	text, _ := resp.Choices[0].Message.Content.(string)
	return strings.TrimSpace(text), nil
}

// Compile-time interface assertions.
var (
	_ core.Module        = (*Provider)(nil)
	_ core.Configurable  = (*Provider)(nil)
	_ core.Provisioner   = (*Provider)(nil)
	_ core.Validator     = (*Provider)(nil)
	_ provider.Completer = (*Provider)(nil)
	_ provider.Describer = (*Provider)(nil)
)
