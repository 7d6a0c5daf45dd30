package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flemzord/membot/internal/memory"
	"github.com/flemzord/membot/internal/provider/providertest"
)

func TestParseCandidates(t *testing.T) {
	t.Parallel()

	resp := `- job | software engineer | 9
* Hobby | rock climbing
1. location | Lyon | 42
not a fact line
 | missing type | 5
preference | dark roast coffee | abc
NONE`

	got := memory.ParseCandidates(resp)
	want := []memory.Candidate{
		{FactType: "job", Value: "software engineer", Confidence: 9},
		{FactType: "hobby", Value: "rock climbing", Confidence: memory.DefaultExtractedConfidence},
		{FactType: "location", Value: "Lyon", Confidence: 10},
		{FactType: "preference", Value: "dark roast coffee", Confidence: memory.DefaultExtractedConfidence},
	}
	if len(got) != len(want) {
		t.Fatalf("ParseCandidates() returned %d candidates, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseCandidates_NonFiniteConfidence(t *testing.T) {
	t.Parallel()

	got := memory.ParseCandidates("job | engineer | NaN\npet | cat | +Inf\nhobby | chess | -inf")
	want := []float64{memory.DefaultExtractedConfidence, memory.MaxScore, memory.MinScore}
	if len(got) != len(want) {
		t.Fatalf("ParseCandidates() = %+v, want %d candidates", got, len(want))
	}
	for i, c := range got {
		if c.Confidence != want[i] {
			t.Errorf("candidate %d confidence = %v, want %v", i, c.Confidence, want[i])
		}
	}
}

func TestParseCandidates_None(t *testing.T) {
	t.Parallel()

	for _, resp := range []string{"", "NONE", "  none \n"} {
		if got := memory.ParseCandidates(resp); got != nil {
			t.Errorf("ParseCandidates(%q) = %+v, want nil", resp, got)
		}
	}
}

func TestLLMExtractor(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockCompleter{Reply: "job | pilot | 8"}
	ex := memory.NewLLMExtractor(mock)

	got, err := ex.Extract(context.Background(), memory.Exchange{
		UserName:    "Alice",
		UserMessage: "I fly planes for a living",
		BotResponse: "That sounds exciting!",
	})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(got) != 1 || got[0].Value != "pilot" {
		t.Errorf("Extract() = %+v", got)
	}
	prompts := mock.Prompts()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "Alice: I fly planes for a living") {
		t.Errorf("extraction prompt = %q", prompts)
	}
}

func TestLLMExtractor_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	mock := &providertest.MockCompleter{CompleteFunc: func(context.Context, string) (string, error) {
		return "", boom
	}}
	if _, err := memory.NewLLMExtractor(mock).Extract(context.Background(), memory.Exchange{}); !errors.Is(err, boom) {
		t.Errorf("Extract() error = %v, want wrapped boom", err)
	}
}

func TestNopExtractor(t *testing.T) {
	t.Parallel()

	got, err := memory.NopExtractor{}.Extract(context.Background(), memory.Exchange{UserMessage: "hi"})
	if got != nil || err != nil {
		t.Errorf("NopExtractor.Extract() = %v, %v", got, err)
	}
}
