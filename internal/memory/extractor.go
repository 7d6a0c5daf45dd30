package memory

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/flemzord/membot/internal/provider"
)

// DefaultExtractedConfidence is assigned to extracted facts whose
// confidence the model omitted or garbled.
const DefaultExtractedConfidence = 7.0

// Exchange is the turn handed to a FactExtractor.
type Exchange struct {
	UserName    string
	UserMessage string
	BotResponse string
}

// Candidate is a fact proposed by an extractor, not yet attributed to a
// user or stored.
type Candidate struct {
	FactType   string
	Value      string
	Confidence float64
}

// FactExtractor analyzes exchanges to find facts worth remembering.
type FactExtractor interface {
	Extract(ctx context.Context, exchange Exchange) ([]Candidate, error)
}

// LLMExtractor asks the model to list facts about the user.
type LLMExtractor struct {
	completer provider.Completer
}

// NewLLMExtractor creates an extractor backed by c.
func NewLLMExtractor(c provider.Completer) *LLMExtractor {
	return &LLMExtractor{completer: c}
}

// Compile-time interface check.
var _ FactExtractor = (*LLMExtractor)(nil)

const extractionPrompt = `Analyze the following exchange and extract durable facts about the user %[1]s.
Return one fact per line in the form: type | value | confidence
where type is a short lowercase category (job, hobby, location, preference, ...)
and confidence is a number from 0 to 10.
If there is nothing worth remembering, return "NONE".

%[1]s: %[2]s
Assistant: %[3]s

Facts:`

// Extract returns the candidates found in the exchange. It returns nil,
// not an error, when the model finds nothing.
func (e *LLMExtractor) Extract(ctx context.Context, exchange Exchange) ([]Candidate, error) {
	name := exchange.UserName
	if name == "" {
		name = "User"
	}
	resp, err := e.completer.Complete(ctx, fmt.Sprintf(extractionPrompt, name, exchange.UserMessage, exchange.BotResponse))
	if err != nil {
		return nil, fmt.Errorf("memory: extraction failed: %w", err)
	}
	return ParseCandidates(resp), nil
}

// ParseCandidates parses "type | value | confidence" lines. Bullets are
// tolerated, malformed lines are skipped and confidence is clamped to the
// 0-10 scale.
func ParseCandidates(response string) []Candidate {
	response = strings.TrimSpace(response)
	if response == "" || strings.EqualFold(response, "NONE") {
		return nil
	}

	var out []Candidate
	for _, line := range splitLines(response) {
		line = trimBullet(line)
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		factType := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if factType == "" || value == "" {
			continue
		}
		confidence := DefaultExtractedConfidence
		if len(parts) >= 3 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil && !math.IsNaN(v) {
				confidence = min(max(v, MinScore), MaxScore)
			}
		}
		out = append(out, Candidate{FactType: factType, Value: value, Confidence: confidence})
	}
	return out
}

// splitLines splits text by newlines, trimming whitespace and filtering blanks.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// trimBullet removes leading bullet markers ("- ", "* ", "1. ", etc.).
func trimBullet(s string) string {
	if len(s) == 0 {
		return s
	}
	if len(s) >= 2 && (s[0] == '-' || s[0] == '*') && s[1] == ' ' {
		return s[2:]
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && s[i] == '.' && i+1 < len(s) && s[i+1] == ' ' {
		return s[i+2:]
	}
	return s
}

// NopExtractor is used when automatic extraction is disabled.
type NopExtractor struct{}

// Compile-time interface check.
var _ FactExtractor = NopExtractor{}

// Extract always returns nil.
func (NopExtractor) Extract(context.Context, Exchange) ([]Candidate, error) {
	return nil, nil
}
