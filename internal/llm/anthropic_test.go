package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ideabank/internal/llm"
)

func anthropicReply(t *testing.T, w http.ResponseWriter, text string, inTokens, outTokens int) {
	t.Helper()
	resp := map[string]interface{}{
		"id":   "msg_test",
		"type": "message",
		"role": "assistant",
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"usage": map[string]int{
			"input_tokens":  inTokens,
			"output_tokens": outTokens,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func newClient(t *testing.T, baseURL string) *llm.AnthropicClient {
	t.Helper()
	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:    "test-key",
		BaseURL:   baseURL,
		RateLimit: 1000,
	})
	require.NoError(t, err)
	return client
}

func TestAnthropicClient_Complete(t *testing.T) {
	var gotReq struct {
		Model       string  `json:"model"`
		System      string  `json:"system"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		anthropicReply(t, w, "1. Title: Something", 120, 80)
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	resp, err := client.Complete(context.Background(), llm.Request{
		System:      "You rank ideas.",
		Prompt:      "rank these",
		Temperature: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "1. Title: Something", resp.Text)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 80, resp.Usage.OutputTokens)

	assert.Equal(t, "You rank ideas.", gotReq.System)
	assert.Equal(t, 0.1, gotReq.Temperature)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestAnthropicClient_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		anthropicReply(t, w, "ok", 10, 5)
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	resp, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicClient_AuthFailsFast(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	_, err := client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, llm.CategoryAuth, llm.Categorize(err))
	assert.Equal(t, int32(1), calls.Load(), "auth errors must not be retried")
}

func TestAnthropicClient_RateLimitCategoryAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 1,
		RateLimit:  1000,
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), llm.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, llm.CategoryRateLimit, llm.Categorize(err))
}

func TestAnthropicClient_EmptyPrompt(t *testing.T) {
	client := newClient(t, "http://localhost:0")
	_, err := client.Complete(context.Background(), llm.Request{})
	assert.ErrorIs(t, err, llm.ErrEmptyPrompt)
}

func TestAnthropicClient_RequiresAPIKey(t *testing.T) {
	_, err := llm.NewAnthropicClient(llm.AnthropicConfig{})
	assert.ErrorIs(t, err, llm.ErrInvalidConfig)
}

func TestAnthropicClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		anthropicReply(t, w, "late", 1, 1)
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Complete(ctx, llm.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, llm.CategoryTimeout, llm.Categorize(err))
}

func TestCategorize(t *testing.T) {
	assert.Equal(t, llm.CategoryUnknown, llm.Categorize(errors.New("boom")))
	assert.Equal(t, llm.CategoryTimeout, llm.Categorize(context.DeadlineExceeded))

	wrapped := &llm.ProviderError{Category: llm.CategoryNoData, Err: errors.New("no conversations")}
	assert.Equal(t, llm.CategoryNoData, llm.Categorize(wrapped))
}

func TestCalculateCost(t *testing.T) {
	cost := llm.CalculateCost(llm.Usage{InputTokens: 1000, OutputTokens: 500}, 0.003, 0.015)
	assert.InDelta(t, 0.003+0.0075, cost, 1e-9)
}
