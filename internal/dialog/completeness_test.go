package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	llmmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm/mock"
)

func TestGate_RuleTier(t *testing.T) {
	t.Parallel()

	g := NewGate()
	ctx := context.Background()

	tests := []struct {
		text string
		want bool
	}{
		{"I'd like to book a cleaning", false},
		{"I want to", true},
		{"I need to", true},
		{"I want", true},
		{"I need a", true},
		{"can you", true},
		{"I wanted it", false},
		{"tell me what I want", false},
		{"I want a cleaning next week please", false},
		{"my tooth hurts and", true},
		{"it's about my insurance or", true},
		{"I'm calling because", true},
		{"an appointment for", true},
		{"it's about the", true},
		{"so basically", true},
		{"I was wondering...", true},
		{"I was wondering…", true},
		{"what are your opening hours", true}, // question word, no "?"
		{"what are your opening hours?", false},
		{"how much is a cleaning?", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			if got := g.Incomplete(ctx, tt.text); got != tt.want {
				t.Errorf("Incomplete(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestGate_ArbiterOnHedge(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "no"},
	}
	g := NewGate(WithArbiter(provider))

	if !g.Incomplete(context.Background(), "I think it was um") {
		t.Error("arbiter answered no, utterance should be held incomplete")
	}
	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("arbiter called %d times, want exactly 1", len(provider.CompleteCalls))
	}
}

func TestGate_ArbiterSaysComplete(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Yes"},
	}
	g := NewGate(WithArbiter(provider))

	if g.Incomplete(context.Background(), "just a cleaning I guess, hmm") {
		t.Error("arbiter answered yes, utterance should pass as complete")
	}
}

func TestGate_ArbiterNotCalledWhenRulesDecide(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{}
	g := NewGate(WithArbiter(provider))

	if !g.Incomplete(context.Background(), "I want to") {
		t.Error("rule tier should mark trailing opener incomplete")
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("arbiter called %d times on a rule-tier verdict, want 0", len(provider.CompleteCalls))
	}
}

func TestGate_ArbiterErrorFallsBackToComplete(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	g := NewGate(WithArbiter(provider))

	if g.Incomplete(context.Background(), "I think it was um") {
		t.Error("arbitration failure must not wedge the turn open")
	}
}

func TestGate_NoArbiterSkipsSlowTier(t *testing.T) {
	t.Parallel()

	g := NewGate()
	if g.Incomplete(context.Background(), "I think it was um") {
		t.Error("hedge endings without an arbiter should pass as complete")
	}
}
