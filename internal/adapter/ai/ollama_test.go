package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/medguide-qa/internal/port"
)

func newOllamaServer(t *testing.T, handler http.HandlerFunc) (*OllamaProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOllamaProvider(
		OllamaEndpointConfig{BaseURL: srv.URL, Model: "all-minilm", Token: "embed-token"},
		OllamaEndpointConfig{BaseURL: srv.URL, Model: "llama2"},
		0,
	)
	return p, srv
}

func TestOllama_EmbedBatch(t *testing.T) {
	p, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "Bearer embed-token", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{1, 0, 0}, {0, 1, 0}},
		})
	})

	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, vectors)
	assert.Equal(t, 3, p.Dimension())
}

func TestOllama_EmbedBatchEmpty(t *testing.T) {
	p := NewOllamaProvider(OllamaEndpointConfig{}, OllamaEndpointConfig{}, 0)
	vectors, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOllama_EmbedDimensionMismatch(t *testing.T) {
	calls := 0
	p, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		vec := []float32{1, 2, 3}
		if calls > 1 {
			vec = []float32{1, 2}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
	})

	_, err := p.Embed(context.Background(), "first")
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrDimensionMismatch)
}

func TestOllama_Generate(t *testing.T) {
	p, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama2", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Options)
		assert.Equal(t, 512, req.Options.NumPredict)
		assert.Equal(t, 0.3, req.Options.Temperature)

		_ = json.NewEncoder(w).Encode(map[string]any{"response": "ABI below 0.9", "done": true})
	})

	out, err := p.Generate(context.Background(), "prompt", port.GenerateOptions{Temperature: 0.3, MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "ABI below 0.9", out)
	assert.Equal(t, "llama2", p.ModelName())
	assert.Equal(t, "all-minilm", p.Embedder().ModelName())
}

func TestOllama_ServerError(t *testing.T) {
	p, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	_, err := p.Generate(context.Background(), "prompt", port.GenerateOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestOllama_ModelNotFound(t *testing.T) {
	p, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'llama2' not found"}`, http.StatusNotFound)
	})

	_, err := p.Generate(context.Background(), "prompt", port.GenerateOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, port.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "404")
}

func TestOllama_Ping(t *testing.T) {
	p, _ := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	assert.NoError(t, p.Ping(context.Background()))
	assert.NoError(t, p.Embedder().Ping(context.Background()))
}

func TestOllama_PingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(OllamaEndpointConfig{BaseURL: url}, OllamaEndpointConfig{BaseURL: url}, 0)
	err := p.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, port.ErrBackendUnavailable)
}
