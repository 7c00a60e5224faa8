package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docrag/internal/llm"
)

const (
	defaultChatModel  = "gpt-4o"
	defaultEmbedModel = "text-embedding-3-small"
	defaultBatch      = 64
	defaultTimeout    = 60 * time.Second
	maxAttempts       = 3
)

// Client implements llm.ChatProvider and llm.Embedder on the OpenAI API
// (or any compatible endpoint via DOCRAG_OPENAI_BASE_URL).
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
	batch      int
	timeout    time.Duration
}

func NewFromEnv() *Client {
	key := os.Getenv("OPENAI_API_KEY")
	cfg := openai.DefaultConfig(key)
	if base := os.Getenv("DOCRAG_OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	c := &Client{
		api:        openai.NewClientWithConfig(cfg),
		chatModel:  defaultChatModel,
		embedModel: defaultEmbedModel,
		batch:      defaultBatch,
		timeout:    defaultTimeout,
	}
	if m := os.Getenv("DOCRAG_CHAT_MODEL"); m != "" {
		c.chatModel = m
	}
	if m := os.Getenv("DOCRAG_EMBEDDING_MODEL"); m != "" {
		c.embedModel = m
	}
	if v := os.Getenv("DOCRAG_EMBED_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.batch = n
		}
	}
	if v := os.Getenv("DOCRAG_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.timeout = d
		}
	}
	return c
}

// Complete implements llm.ChatProvider with a single non-streaming completion.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.chatModel,
			Messages:    msgs,
			Temperature: temperature,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion without choices", llm.ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embeddings implements llm.Embedder, sub-batching above the provider limit
// and reassembling results in input order.
func (c *Client) Embeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += c.batch {
		end := start + c.batch
		if end > len(inputs) {
			end = len(inputs)
		}
		batch := inputs[start:end]
		var resp openai.EmbeddingResponse
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			resp, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(c.embedModel),
				Input: batch,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%w: %d embeddings for %d inputs", llm.ErrMalformedResponse, len(resp.Data), len(batch))
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// withRetry runs fn under the per-call timeout, retrying transient failures
// (429/5xx/transport) with linear backoff. Exhausted attempts surface as
// llm.ErrProviderUnavailable.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, ctx.Err())
			case <-time.After(backoff + time.Duration(attempt)*100*time.Millisecond):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retriable(err) {
			break
		}
	}
	return fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, lastErr)
}

func retriable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode/100 == 5
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
