package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "chat-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "unavailable"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "chat-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewLLMService(t *testing.T) {
	for _, provider := range []string{"deepseek", "openai", "ollama"} {
		_, err := NewLLMService(&LLMConfig{Provider: provider, Model: "m", APIKey: "k"})
		assert.NoError(t, err, provider)
	}
	_, err := NewLLMService(&LLMConfig{Provider: "unsupported"})
	assert.Error(t, err)
}

func TestLLMService_Chat(t *testing.T) {
	server := newChatServer(t, "  Expect a steady dinner.  ", http.StatusOK)
	svc, err := NewLLMService(&LLMConfig{Provider: "openai", Model: "chat-model", APIKey: "k", BaseURL: server.URL, MaxTokens: 64})
	require.NoError(t, err)

	content, err := svc.Chat(context.Background(), []Message{SystemPrompt("system"), UserMessage("hello")})
	require.NoError(t, err)
	assert.Equal(t, "Expect a steady dinner.", content)
}

func TestLLMService_ChatErrors(t *testing.T) {
	t.Run("provider failure", func(t *testing.T) {
		server := newChatServer(t, "", http.StatusServiceUnavailable)
		svc, err := NewLLMService(&LLMConfig{Provider: "openai", Model: "chat-model", APIKey: "k", BaseURL: server.URL})
		require.NoError(t, err)
		_, err = svc.Chat(context.Background(), []Message{SystemPrompt("system"), UserMessage("hello")})
		assert.Error(t, err)
	})

	t.Run("empty content", func(t *testing.T) {
		server := newChatServer(t, "   ", http.StatusOK)
		svc, err := NewLLMService(&LLMConfig{Provider: "openai", Model: "chat-model", APIKey: "k", BaseURL: server.URL})
		require.NoError(t, err)
		_, err = svc.Chat(context.Background(), []Message{SystemPrompt("system"), UserMessage("hello")})
		assert.Error(t, err)
	})

	t.Run("no messages", func(t *testing.T) {
		svc, err := NewLLMService(&LLMConfig{Provider: "openai", Model: "chat-model", APIKey: "k"})
		require.NoError(t, err)
		_, err = svc.Chat(context.Background(), nil)
		assert.Error(t, err)
	})
}
