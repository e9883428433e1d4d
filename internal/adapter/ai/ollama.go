package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Ensure OllamaProvider implements the interfaces.
var (
	_ port.Embedder = (*OllamaProvider)(nil)
	_ port.LLM      = (*OllamaProvider)(nil)
	_ port.Pinger   = (*OllamaProvider)(nil)
)

// OllamaEndpointConfig holds the configuration for a single Ollama endpoint.
type OllamaEndpointConfig struct {
	BaseURL string // e.g. http://localhost:11434 or https://api.ollama.com
	Model   string // e.g. all-minilm, llama2
	Token   string // Bearer token for Ollama Cloud (empty = no auth)
}

// OllamaProvider implements port.Embedder and port.LLM using the Ollama REST API.
// Supports separate endpoints for embed vs generate (different URLs, models, and tokens).
type OllamaProvider struct {
	embed      OllamaEndpointConfig
	chat       OllamaEndpointConfig
	httpClient *http.Client
	dims       dimensionGuard
}

// NewOllamaProvider creates a new Ollama-backed provider with separate embed/generate configs.
// A zero timeout means no client-side timeout; the caller's context still applies.
func NewOllamaProvider(embed, chat OllamaEndpointConfig, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		embed:      embed,
		chat:       chat,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embedder narrows the provider to its embedding side.
func (o *OllamaProvider) Embedder() *OllamaEmbedder { return &OllamaEmbedder{o} }

// OllamaEmbedder is the embedding view of an OllamaProvider: its model name
// and ping target are the embed endpoint's.
type OllamaEmbedder struct{ *OllamaProvider }

// ModelName returns the embedding model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.embed.Model }

// Ping checks the embed endpoint.
func (e *OllamaEmbedder) Ping(ctx context.Context) error { return e.ping(ctx, e.embed) }

// Dimension returns the embedding dimension observed so far (0 before the first call).
func (o *OllamaProvider) Dimension() int { return o.dims.dimension() }

// ModelName returns the generation model identifier.
func (o *OllamaProvider) ModelName() string {
	return o.chat.Model
}

// Embed generates a vector embedding for the given text.
func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embedInput(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := o.embedInput(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed batch: got %d embeddings for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (o *OllamaProvider) embedInput(ctx context.Context, input any) ([][]float32, error) {
	payload := map[string]any{
		"model": o.embed.Model,
		"input": input,
	}

	body, err := o.post(ctx, o.embed, "/api/embed", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	for _, v := range resp.Embeddings {
		if err := o.dims.check(len(v)); err != nil {
			return nil, err
		}
	}
	return resp.Embeddings, nil
}

// generateRequest is the Ollama /api/generate request format.
type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

// Generate produces a completion for prompt.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	payload := generateRequest{
		Model:  o.chat.Model,
		Prompt: prompt,
		Stream: false,
		Options: &generateOptions{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	}

	body, err := o.post(ctx, o.chat, "/api/generate", payload)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	var resp struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("ollama generate decode: %w", err)
	}
	return resp.Response, nil
}

// Ping validates the generate endpoint is reachable by checking /api/tags.
func (o *OllamaProvider) Ping(ctx context.Context) error {
	return o.ping(ctx, o.chat)
}

func (o *OllamaProvider) ping(ctx context.Context, cfg OllamaEndpointConfig) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama ping: create request: %w", err)
	}
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama at %s: %v", port.ErrBackendUnavailable, cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: ollama at %s returned %d: %s", port.ErrBackendUnavailable, cfg.BaseURL, resp.StatusCode, string(body))
	}
	return nil
}

// post is a helper for POST requests to an Ollama endpoint (with optional bearer token).
func (o *OllamaProvider) post(ctx context.Context, cfg OllamaEndpointConfig, path string, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: ollama API error (%d): %s", port.ErrBackendUnavailable, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
