package ctxengine

import (
	"math"
	"unicode/utf8"
)

// TokenEstimator estimates the token count of a string.
type TokenEstimator interface {
	Estimate(text string) int
}

// DefaultCharsPerToken is the ratio used when none is configured.
const DefaultCharsPerToken = 4.0

// CharEstimator approximates tokens from the rune count, so accented and
// non-Latin Discord messages are not overcounted by their UTF-8 length.
type CharEstimator struct {
	CharsPerToken float64
}

// NewCharEstimator returns an estimator with the given ratio, or
// DefaultCharsPerToken when the ratio is not positive.
func NewCharEstimator(charsPerToken float64) *CharEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &CharEstimator{CharsPerToken: charsPerToken}
}

// Estimate rounds up so any non-empty text costs at least one token.
func (e *CharEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / e.CharsPerToken))
}

// PromptBudget is an informational token breakdown of a built prompt.
// Nothing is trimmed to fit it; count caps bound the context instead.
type PromptBudget struct {
	System  int `json:"system"`
	Context int `json:"context"`
	Message int `json:"message"`
	Total   int `json:"total"`
}

// EstimatePrompt estimates each part of a prompt and the whole.
func EstimatePrompt(estimator TokenEstimator, system, context, userMessage, prompt string) PromptBudget {
	return PromptBudget{
		System:  estimator.Estimate(system),
		Context: estimator.Estimate(context),
		Message: estimator.Estimate(userMessage),
		Total:   estimator.Estimate(prompt),
	}
}
