package anyllm

import (
	"context"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/castmix/pkg/provider/llm"
)

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o-mini"}

	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a podcast co-host.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "What year did Apollo 11 land?"}},
		Temperature:  0.3,
		MaxTokens:    120,
	})

	if params.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].Content != "You are a podcast co-host." {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("user message role = %q", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 120 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_Defaults(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if len(params.Messages) != 1 {
		t.Errorf("got %d messages, want 1 without a system prompt", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens must stay unset")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		opts     []anyllmlib.Option
		wantErr  bool
	}{
		{"empty provider", "", "gpt-4o", nil, true},
		{"empty model", "openai", "", nil, true},
		{"unsupported", "fakecloud", "m", []anyllmlib.Option{anyllmlib.WithAPIKey("dummy")}, true},
		{"openai with key", "OpenAI", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}, false},
		{"anthropic with key", "anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}, false},
		{"ollama without key", "ollama", "llama3", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.provider, tt.model, tt.opts...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Name() != strings.ToLower(tt.provider) {
				t.Errorf("name = %q, want lower-cased", p.Name())
			}
		})
	}
}

func TestComplete_RequiresMessages(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty request")
	}
}
