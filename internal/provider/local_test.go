package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(openAIEmbeddingResponse{
			Data: []openAIEmbeddingRow{{Index: 0, Embedding: []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = ""
	p, err := NewLocalProvider(cfg, nil)
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"one"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}}, vectors)
}

func TestLocalBearerAuthWhenKeySet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(openAIEmbeddingResponse{
			Data: []openAIEmbeddingRow{{Index: 0, Embedding: []float32{1}}},
		})
	}))
	defer srv.Close()

	p, err := NewLocalProvider(testConfig(srv.URL), nil)
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"one"})
	require.NoError(t, err)
}

func TestLocalDefaultsToLocalhost(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults(Local)
	assert.Equal(t, "http://localhost:1234", cfg.BaseURL)
	assert.NoError(t, cfg.Validate(Local)) // no API key required
}
