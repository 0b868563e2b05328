package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/kalambet/claimcheck/internal/apperr"
)

const (
	defaultTimeout = 60 * time.Second
	retryBackoff   = 500 * time.Millisecond
	maxAttempts    = 2
	temperature    = 0.2
)

type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string

	// Timeout bounds each individual call attempt.
	Timeout time.Duration

	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64

	HTTPClient *http.Client
}

// Client talks to an OpenAI-compatible endpoint. It implements Model and
// Embedder.
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
	timeout    time.Duration
	limiter    *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model API key is required")
	}
	if cfg.ChatModel == "" {
		return nil, fmt.Errorf("chat model is required")
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		api:        openai.NewClientWithConfig(oc),
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		timeout:    timeout,
		limiter:    limiter,
	}, nil
}

// Complete sends a chat completion. Transient failures are retried once.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	creq := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: temperature,
	}
	if len(req.Tools) > 0 {
		creq.Tools = toOpenAITools(req.Tools)
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	err := c.do(ctx, func(callCtx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(callCtx, creq)
		return err
	})
	if err != nil {
		return Response{}, upstream(apperr.ServiceModel, "complete", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, apperr.Upstream(apperr.ServiceModel, "complete", errors.New("no choices in response"))
	}

	msg := resp.Choices[0].Message
	out := Response{
		Text:       strings.TrimSpace(msg.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedModel == "" {
		return nil, apperr.Upstream(apperr.ServiceEmbedder, "embed", errors.New("no embedding model configured"))
	}

	var resp openai.EmbeddingResponse
	err := c.do(ctx, func(callCtx context.Context) error {
		var err error
		resp, err = c.api.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.embedModel),
		})
		return err
	})
	if err != nil {
		return nil, upstream(apperr.ServiceEmbedder, "embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperr.Upstream(apperr.ServiceEmbedder, "embed", errors.New("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

// ListModels returns the IDs of the models the endpoint serves.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var list openai.ModelsList
	err := c.do(ctx, func(callCtx context.Context) error {
		var err error
		list, err = c.api.ListModels(callCtx)
		return err
	})
	if err != nil {
		return nil, upstream(apperr.ServiceModel, "list models", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// do runs fn under the rate limiter with a per-attempt timeout, retrying
// once on a transient failure.
func (c *Client) do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := range maxAttempts {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || !isTransient(err) {
			return err
		}
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
	}
	return lastErr
}

func upstream(service, op string, err error) error {
	return &apperr.UpstreamServiceError{
		Service:   service,
		Op:        op,
		Retryable: isTransient(err),
		Cause:     err,
	}
}

// isTransient reports whether err is a timeout, a 429 or a 5xx.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func toOpenAITools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
