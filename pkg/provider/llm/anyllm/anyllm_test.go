package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	"github.com/aishwarymishra09/voice-chat-be/pkg/types"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "some-model"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("groq", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("not-a-provider", "some-model"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama-3.3-70b-versatile"}

	req := llm.CompletionRequest{
		SystemPrompt: "You are a receptionist.",
		Messages: []types.Message{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello!"},
			{Role: "user", Content: "Book me in"},
		},
		Temperature: 0.7,
		MaxTokens:   120,
	}

	params := p.buildParams(req)
	if params.Model != "llama-3.3-70b-versatile" {
		t.Errorf("model: got %q", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("messages: got %d, want 4 (system + 3)", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role: got %q, want system", params.Messages[0].Role)
	}
	if params.Messages[0].Content != "You are a receptionist." {
		t.Errorf("system content: got %q", params.Messages[0].Content)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature: got %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 120 {
		t.Errorf("max tokens: got %v", params.MaxTokens)
	}
}

func TestBuildParams_Defaults(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "Hi"}},
	})
	if params.Temperature != nil {
		t.Error("zero temperature must map to provider default (nil)")
	}
	if params.MaxTokens != nil {
		t.Error("zero max tokens must map to provider default (nil)")
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages: got %d, want 1", len(params.Messages))
	}
}
