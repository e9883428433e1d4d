package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arturoeanton/medguide-qa/internal/adapter/ai"
	"github.com/arturoeanton/medguide-qa/internal/adapter/cache"
	"github.com/arturoeanton/medguide-qa/internal/adapter/pdf"
	"github.com/arturoeanton/medguide-qa/internal/adapter/store"
	"github.com/arturoeanton/medguide-qa/internal/middleware"
	"github.com/arturoeanton/medguide-qa/internal/port"
	"github.com/arturoeanton/medguide-qa/internal/service"
	"github.com/arturoeanton/medguide-qa/internal/splitter"
	"github.com/arturoeanton/medguide-qa/pkg/config"
)

const openAIMaxRetries = 3

// runtime is the wired application.
type runtime struct {
	qa      *service.RAGService
	auditor middleware.AuditWriter
	closers []func() error
}

// bootstrap wires adapters and services from c. Nothing is contacted except
// the index database and the cache; model backends are checked when the
// system is initialized.
func bootstrap(ctx context.Context, c *config.Config) (*runtime, error) {
	rt := &runtime{auditor: middleware.NewSlogAuditWriter(slog.Default())}

	embedder, llm, err := newProviders(c)
	if err != nil {
		return nil, err
	}

	split, err := splitter.New(splitter.Policy{
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
		Separators:   c.TextSeparators,
	})
	if err != nil {
		return nil, err
	}

	loader, err := pdf.NewForExtractor(c.PDFExtractor)
	if err != nil {
		return nil, err
	}
	if c.PDFExtractor == pdf.ExtractorPDFToText {
		if err := pdf.CheckAvailable(); err != nil {
			slog.Warn("PDF text extraction unavailable", "error", err, "install", pdf.InstallInstructions())
		}
	}

	index, err := store.Open(ctx, c)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, index.Close)

	answerCache := newAnswerCache(ctx, c)
	if closer, ok := answerCache.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, closer.Close)
	}

	indexer := service.NewIndexer(loader, split, embedder, c.EmbedBatchSize, c.EmbedWorkers)
	rt.qa = service.NewRAGService(
		indexer,
		embedder,
		llm,
		index,
		answerCache,
		port.GenerateOptions{Temperature: c.LLMTemperature, MaxTokens: c.LLMMaxTokens},
		c.PromptTemplate,
		service.Options{
			PDFDirectory:     c.PDFDirectory,
			MaxPDFBytes:      c.MaxPDFBytes(),
			DefaultK:         c.DefaultNumSources,
			MaxK:             c.MaxNumSources,
			ExampleQuestions: c.ExampleQuestions,
		},
	)

	slog.Info("medguide wired",
		"index_backend", index.Name(),
		"embedding_provider", c.EmbeddingProvider,
		"embedding_model", embedder.ModelName(),
		"llm_provider", c.LLMProvider,
		"llm_model", llm.ModelName(),
		"pdf_directory", c.PDFDirectory,
		"pdf_extractor", c.PDFExtractor,
	)
	return rt, nil
}

// newProviders selects the embedding and generation backends. Ollama and
// OpenAI can be mixed.
func newProviders(c *config.Config) (port.Embedder, port.LLM, error) {
	var (
		ollama *ai.OllamaProvider
		openai *ai.OpenAIProvider
	)
	if c.EmbeddingProvider == "ollama" || c.LLMProvider == "ollama" {
		ollama = ai.NewOllamaProvider(
			ai.OllamaEndpointConfig{
				BaseURL: c.OllamaEmbedURL,
				Model:   c.OllamaEmbedModel,
				Token:   c.OllamaEmbedToken,
			},
			ai.OllamaEndpointConfig{
				BaseURL: c.OllamaChatURL,
				Model:   c.OllamaChatModel,
				Token:   c.OllamaChatToken,
			},
			c.RequestTimeout,
		)
	}
	if c.EmbeddingProvider == "openai" || c.LLMProvider == "openai" {
		var err error
		openai, err = ai.NewOpenAIProvider(ai.OpenAIConfig{
			BaseURL:    c.OpenAIBaseURL,
			APIKey:     c.OpenAIAPIKey,
			EmbedModel: c.OpenAIEmbedModel,
			ChatModel:  c.OpenAIChatModel,
			Timeout:    c.RequestTimeout,
			MaxRetries: openAIMaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	var embedder port.Embedder
	switch c.EmbeddingProvider {
	case "ollama":
		embedder = ollama.Embedder()
	case "openai":
		embedder = openai.Embedder()
	default:
		return nil, nil, fmt.Errorf("%w: unknown embedding provider %q", port.ErrConfiguration, c.EmbeddingProvider)
	}

	var llm port.LLM
	switch c.LLMProvider {
	case "ollama":
		llm = ollama
	case "openai":
		llm = openai
	default:
		return nil, nil, fmt.Errorf("%w: unknown llm provider %q", port.ErrConfiguration, c.LLMProvider)
	}
	return embedder, llm, nil
}

// newAnswerCache connects to Redis when caching is enabled. An unreachable
// Redis disables caching instead of failing startup.
func newAnswerCache(ctx context.Context, c *config.Config) port.AnswerCache {
	if !c.CacheEnabled || c.RedisAddr == "" {
		return cache.Noop{}
	}
	rc, err := cache.NewRedisCache(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB, c.CacheTTL)
	if err != nil {
		slog.Warn("answer cache disabled", "redis_addr", c.RedisAddr, "error", err)
		return cache.Noop{}
	}
	return rc
}
