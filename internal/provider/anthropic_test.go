package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnthropic(t *testing.T, baseURL string) *AnthropicProvider {
	t.Helper()
	cfg := testConfig(baseURL)
	cfg.GenerationModel = "claude-3-5-haiku-latest"
	p, err := NewAnthropicProvider(cfg, nil)
	require.NoError(t, err)
	return p
}

func TestAnthropicEmbedUnsupported(t *testing.T) {
	_, err := newAnthropic(t, "http://unused").Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestAnthropicMetadataHasNoEmbeddings(t *testing.T) {
	meta := newAnthropic(t, "http://unused").Metadata()
	assert.False(t, meta.SupportsEmbeddings)
	assert.Zero(t, meta.EmbeddingDimension)
	assert.True(t, meta.SupportsGeneration)
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("Anthropic-Version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
		assert.Equal(t, []string{"THE END"}, req.StopSequences)
		assert.NotZero(t, req.MaxTokens)

		fmt.Fprint(w, `{
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "The dragon sleeps."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	res, err := newAnthropic(t, srv.URL).Generate(context.Background(), GenerateRequest{
		Prompt: "continue the tale",
		Stop:   []string{"THE END"},
	})
	require.NoError(t, err)
	assert.Equal(t, "The dragon sleeps.", res.Text)
	assert.Equal(t, "end_turn", res.FinishReason)
	assert.Equal(t, 17, res.Usage.TotalTokens)
}

func TestAnthropicStreamGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, "data: {\"type\":\"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"In the\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\" beginning\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	ch, err := newAnthropic(t, srv.URL).StreamGenerate(context.Background(), GenerateRequest{Prompt: "story"})
	require.NoError(t, err)

	var text, finish string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Delta
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	assert.Equal(t, "In the beginning", text)
	assert.Equal(t, "end_turn", finish)
}

func TestAnthropicGenerateEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model": "m", "content": [], "stop_reason": "end_turn"}`)
	}))
	defer srv.Close()

	_, err := newAnthropic(t, srv.URL).Generate(context.Background(), GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrProtocol)
}
