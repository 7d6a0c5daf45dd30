package ctxengine_test

import (
	"testing"

	ctxengine "github.com/flemzord/membot/internal/context"
)

var _ ctxengine.TokenEstimator = (*ctxengine.CharEstimator)(nil)

func TestCharEstimator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ratio float64
		input string
		want  int
	}{
		{0, "", 0},
		{0, "a", 1},
		{0, "abcd", 1},
		{0, "abcde", 2},
		{-2, "hello", 2},
		{3, "hello world", 4},
		// Eight runes, sixteen bytes.
		{4, "éléphant", 2},
		{2, "ありがとう", 3},
	}
	for _, tt := range tests {
		est := ctxengine.NewCharEstimator(tt.ratio)
		if got := est.Estimate(tt.input); got != tt.want {
			t.Errorf("Estimate(%q) with ratio %v = %d, want %d", tt.input, est.CharsPerToken, got, tt.want)
		}
	}
}

func TestNewCharEstimator_DefaultRatio(t *testing.T) {
	t.Parallel()

	for _, r := range []float64{0, -1.5} {
		if got := ctxengine.NewCharEstimator(r).CharsPerToken; got != ctxengine.DefaultCharsPerToken {
			t.Errorf("NewCharEstimator(%v).CharsPerToken = %v", r, got)
		}
	}
}

func TestEstimatePrompt(t *testing.T) {
	t.Parallel()

	prompt := "system\n\nctx\n\nhi"
	b := ctxengine.EstimatePrompt(&mockEstimator{}, "system", "ctx", "hi", prompt)

	want := ctxengine.PromptBudget{System: 6, Context: 3, Message: 2, Total: len(prompt)}
	if b != want {
		t.Errorf("budget = %+v, want %+v", b, want)
	}

	if b := ctxengine.EstimatePrompt(ctxengine.NewCharEstimator(4), "sys", "", "msg", "sys\nmsg"); b.Context != 0 {
		t.Errorf("empty context should cost 0 tokens, got %d", b.Context)
	}
}
