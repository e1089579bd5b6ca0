// Package embeddings wraps the embedding provider with batching, retry, and
// backoff.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/codereader/codereader/internal/apperrors"
	"github.com/codereader/codereader/internal/metrics"
	"github.com/codereader/codereader/pkg/config"
)

const (
	// providerBatchSize caps how many texts go to the provider per call
	providerBatchSize = 20

	maxRetries  = 3
	backoffBase = 1 * time.Second
	backoffCap  = 60 * time.Second
)

// Client batches texts to the embedding provider
type Client struct {
	api    *openai.Client
	model  string
	logger *slog.Logger
}

// NewClient creates an embedding client for the configured provider
func NewClient(cfg config.EmbeddingsConfig, logger *slog.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Model returns the configured embedding model name
func (c *Client) Model() string { return c.model }

// EmbedTexts embeds texts in provider batches of at most 20, preserving
// input order: the vector at position i corresponds to texts[i]. Batches
// are serialized so a single job bounds provider fan-out.
func (c *Client) EmbedTexts(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if model == "" {
		model = c.model
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += providerBatchSize {
		end := start + providerBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end], model)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single text and returns its vector
func (c *Client) EmbedQuery(ctx context.Context, text string, model string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperrors.Provider("provider returned no embedding", nil)
	}
	return vectors[0], nil
}

// embedBatch sends one provider call with retry on rate-limit and transient
// errors. Backoff starts at 1s and doubles per attempt, capped at 60s; the
// sleep aborts when ctx is cancelled.
func (c *Client) embedBatch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	backoff := backoffBase
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(model),
		})
		if err == nil {
			return orderVectors(resp, len(texts))
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, apperrors.Provider("embedding request failed", err)
		}
		if attempt == maxRetries {
			break
		}

		metrics.EmbeddingRetries.Inc()
		c.logger.Warn("embedding request retrying",
			"attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, apperrors.Provider("embedding cancelled during backoff", ctx.Err())
		}
		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
	return nil, apperrors.Provider(fmt.Sprintf("embedding failed after %d attempts", maxRetries), lastErr)
}

// orderVectors places each returned embedding at its input index
func orderVectors(resp openai.EmbeddingResponse, n int) ([][]float32, error) {
	vectors := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, apperrors.Provider(fmt.Sprintf("provider returned out-of-range index %d", d.Index), nil)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, apperrors.Provider(fmt.Sprintf("provider returned no vector for input %d", i), nil)
		}
	}
	return vectors, nil
}

// isRetryable reports whether the provider error is a rate limit or a
// transient server failure.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return true
		}
		return apiErr.HTTPStatusCode >= 500 && apiErr.HTTPStatusCode <= 599
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 {
			return true
		}
		return reqErr.HTTPStatusCode >= 500 && reqErr.HTTPStatusCode <= 599
	}
	return false
}
