package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatibleClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "the prompt", req.Messages[0].Content)
		assert.Equal(t, 256, req.MaxTokens)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"grounded answer"}}]}`))
	}))
	defer server.Close()

	c, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-test"}, BackendOptions{MaxTokens: 256})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", out)
}

func TestOpenAICompatibleClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	c, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, APIKey: "sk-bad"}, BackendOptions{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendCallFailed)
	assert.False(t, errors.Is(err, ErrBackendTimeout))

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, http.StatusUnauthorized, callErr.StatusCode)
	assert.Contains(t, callErr.Body, "bad key")
	assert.Equal(t, "openai", callErr.Backend)
}

func TestOpenAICompatibleClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, APIKey: "k"}, BackendOptions{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "q")
	assert.ErrorIs(t, err, ErrBackendCallFailed)
}

func TestBackend_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, err := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, APIKey: "k"}, BackendOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendTimeout)
	assert.ErrorIs(t, err, ErrBackendCallFailed)
}

func TestWatsonxClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ml/v1/text/generation", r.URL.Path)
		assert.Equal(t, watsonxAPIVersion, r.URL.Query().Get("version"))
		assert.Equal(t, "Bearer wx-key", r.Header.Get("Authorization"))

		var req watsonxRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "proj-1", req.ProjectID)
		assert.Equal(t, "ibm/model", req.ModelID)
		assert.Equal(t, "prompt text", req.Input)
		assert.Equal(t, DefaultMaxTokens, req.Parameters.MaxNewTokens)

		_, _ = w.Write([]byte(`{"results":[{"generated_text":"from watsonx"}]}`))
	}))
	defer server.Close()

	c, err := NewWatsonxClient(WatsonxConfig{APIKey: "wx-key", URL: server.URL, ProjectID: "proj-1", ModelID: "ibm/model"}, BackendOptions{})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "from watsonx", out)
}

func TestWatsonxClient_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	c, err := NewWatsonxClient(WatsonxConfig{APIKey: "k", URL: server.URL, ProjectID: "p", ModelID: "m"}, BackendOptions{})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), "q")
	assert.ErrorIs(t, err, ErrBackendCallFailed)
}

func TestAnthropicClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}`))
	}))
	defer server.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "ak", BaseURL: server.URL}, BackendOptions{})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)
}

func TestCallError_Message(t *testing.T) {
	err := &CallError{Backend: "openai", StatusCode: 500, Body: "boom", Err: errors.New("unexpected status 500")}
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}
