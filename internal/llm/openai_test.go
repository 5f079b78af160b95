package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lukasbauer/evervoice/internal/core"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		if _, err := NewOpenAIClient(OpenAIConfig{}); err == nil {
			t.Error("expected error for missing API key")
		}
	})

	t.Run("default values", func(t *testing.T) {
		client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
		if err != nil {
			t.Fatalf("NewOpenAIClient failed: %v", err)
		}
		if client.model != DefaultModel {
			t.Errorf("model = %q, want %q", client.model, DefaultModel)
		}
	})

	t.Run("custom model", func(t *testing.T) {
		client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", Model: "gpt-4o"})
		if client.model != "gpt-4o" {
			t.Errorf("model = %q, want %q", client.model, "gpt-4o")
		}
	})
}

func TestChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"  Hello, sweetheart.  "}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}

	reply, err := client.Chat(context.Background(), core.ChatRequest{
		Model:        "gpt-4o",
		SystemPrompt: "be kind",
		History: []core.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		UserText: "how are you?",
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "Hello, sweetheart." {
		t.Errorf("reply = %q, want trimmed content", reply)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q, want request override", got.Model)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[3].Content != "how are you?" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestChatAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	client, _ := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
	if _, err := client.Chat(context.Background(), core.ChatRequest{UserText: "x"}); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestPersonaSystemPrompt(t *testing.T) {
	prompt := PersonaSystemPrompt(DefaultPersonaPrompt(core.RoleWife, "Honey"), []string{"We met in Lisbon."})

	for _, want := range []string{"STYLE RULES", "their wife", `"Honey"`, "We met in Lisbon."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestDefaultPersonaPromptUnknownRole(t *testing.T) {
	if got := DefaultPersonaPrompt(core.Role("cousin"), ""); !strings.Contains(got, "someone close") {
		t.Errorf("DefaultPersonaPrompt(unknown) = %q", got)
	}
}
