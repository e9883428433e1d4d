package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/arturoeanton/medguide-qa/internal/port"
)

// Ensure OpenAIProvider implements the interfaces.
var (
	_ port.Embedder = (*OpenAIEmbedder)(nil)
	_ port.LLM      = (*OpenAIProvider)(nil)
	_ port.Pinger   = (*OpenAIProvider)(nil)
)

// Default configuration values.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIRetries = 5
)

// OpenAIConfig configures an OpenAI-compatible endpoint (OpenAI, Azure
// OpenAI, vLLM, LocalAI, ...).
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIProvider is the cloud counterpart of OllamaProvider.
type OpenAIProvider struct {
	cfg        OpenAIConfig
	httpClient *http.Client
	dims       dimensionGuard
	backoff    func(attempt int) time.Duration
}

// NewOpenAIProvider creates a provider. The API key is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", port.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultOpenAIRetries
	}
	return &OpenAIProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    retryDelay,
	}, nil
}

// Embedder narrows the provider to its embedding side.
func (p *OpenAIProvider) Embedder() *OpenAIEmbedder { return &OpenAIEmbedder{p} }

// OpenAIEmbedder is the embedding view of an OpenAIProvider.
type OpenAIEmbedder struct{ *OpenAIProvider }

// ModelName returns the embedding model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.cfg.EmbedModel }

// ModelName returns the chat model identifier.
func (p *OpenAIProvider) ModelName() string { return p.cfg.ChatModel }

// Embed returns an embedding vector for the given text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one /embeddings call, in input order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := p.do(ctx, http.MethodPost, "/embeddings", map[string]any{
		"model": p.cfg.EmbedModel,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("openai embeddings decode: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d embeddings for %d inputs", len(out.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	filled := make([]bool, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range for %d inputs", d.Index, len(texts))
		}
		if filled[d.Index] {
			return nil, fmt.Errorf("openai embeddings: duplicate index %d", d.Index)
		}
		if err := p.dims.check(len(d.Embedding)); err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		vectors[d.Index] = d.Embedding
		filled[d.Index] = true
	}
	return vectors, nil
}

// Dimension returns the embedding dimension observed so far.
func (p *OpenAIProvider) Dimension() int { return p.dims.dimension() }

// chatCompletionRequest is the OpenAI /chat/completions request format.
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate sends prompt as a single user message.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	body, err := p.do(ctx, http.MethodPost, "/chat/completions", chatCompletionRequest{
		Model:       p.cfg.ChatModel,
		Messages:    []chatCompletionMsg{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("openai chat decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai chat: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// Ping lists models; a cheap authenticated request.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.do(ctx, http.MethodGet, "/models", nil); err != nil {
		return fmt.Errorf("openai ping: %w", err)
	}
	return nil
}

// do sends a request, retrying 429 and 5xx responses with exponential
// backoff and honouring Retry-After.
func (p *OpenAIProvider) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	var (
		lastErr error
		wait    time.Duration
	)
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		wait = p.backoff(attempt)

		var body io.Reader = http.NoBody
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", port.ErrBackendUnavailable, err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("%w: %s: %s", port.ErrBackendUnavailable, resp.Status, string(respBody))
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				wait = time.Duration(secs) * time.Second
			}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return respBody, nil
	}
	return nil, lastErr
}

// retryDelay is exponential backoff capped at 8s.
func retryDelay(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * 500 * time.Millisecond
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
