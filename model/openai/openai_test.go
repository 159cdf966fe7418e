package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmchat/model"
)

var _ model.Model = (*Model)(nil)

func TestModel_Generate(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "def reverse(s): return s[::-1]"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
		}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
		o.MaxRetries = 0
	})

	resp, err := m.Generate(context.Background(), model.Request{
		System:    "Generate a Python code based on user requirement",
		Messages:  []model.Message{{Role: model.RoleUser, Content: "reverse a string"}},
		MaxTokens: 256,
	})
	require.NoError(t, err)

	assert.Equal(t, "def reverse(s): return s[::-1]", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 20, resp.Usage.TotalTokens)

	msgs, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.EqualValues(t, 256, captured["max_completion_tokens"])
	assert.InDelta(t, 0.1, captured["temperature"], 1e-9)
}

func TestModel_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "bad"
		o.BaseURL = srv.URL + "/"
		o.MaxRetries = 0
	})

	_, err := m.Generate(context.Background(), model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api error")
}

func TestModel_Info(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "gpt-4o"; o.APIKey = "k" })
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "openai"}, m.Info())
}
