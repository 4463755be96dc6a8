package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	internalerrors "github.com/olegiv/drfeedback-go/internal/errors"
	"github.com/olegiv/drfeedback-go/internal/repo"
	"github.com/olegiv/drfeedback-go/internal/runner"
)

// Triager turns an inspection run into a Triage.
type Triager interface {
	Triage(ctx context.Context, agg *runner.AggregateReport) (*Triage, *Stats, error)
}

// Client triages bundles with Claude.
type Client struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	maxAttempts int
	backoff     backoffFunc
}

// Stats holds statistics about the API call
type Stats struct {
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	CostUSD             float64
	DurationSeconds     float64
}

// ClientConfig configures NewClient. BaseURL is only set to reach a
// non-default endpoint.
type ClientConfig struct {
	APIKey      string
	Model       string
	ProxyURL    string
	Timeout     time.Duration
	MaxTokens   int
	MaxAttempts int
	BaseURL     string
}

// NewClient creates a new Claude triage client
func NewClient(cfg ClientConfig) (*Client, error) {
	httpClient, err := repo.NewHTTPClient(cfg.ProxyURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(httpClient)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxRetries
	}

	return &Client{
		client:      anthropic.NewClient(cfg.APIKey, opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxAttempts: attempts,
		backoff:     getBackoffDuration,
	}, nil
}

// Triage asks the model to assess agg. Responses that fail to parse are not
// retried.
func (c *Client) Triage(ctx context.Context, agg *runner.AggregateReport) (*Triage, *Stats, error) {
	startTime := time.Now()
	system, user := SystemPrompt(), UserPrompt(agg)

	var stats *Stats
	triage, err := retryWithBackoff(ctx, c.maxAttempts, c.backoff, func() (*Triage, error) {
		response, err := c.callAPI(ctx, system, user)
		if err != nil {
			return nil, err
		}
		stats = c.calculateStats(response, time.Since(startTime).Seconds())

		text := responseText(response)
		if text == "" {
			return nil, permanent(fmt.Errorf("empty response from Claude"))
		}

		t, err := ParseTriage(text)
		if err != nil {
			return nil, permanent(fmt.Errorf("failed to parse triage: %w", err))
		}
		return t, nil
	})
	if err != nil {
		return nil, stats, err
	}
	return triage, stats, nil
}

func (c *Client) callAPI(ctx context.Context, systemPrompt, userPrompt string) (anthropic.MessagesResponse, error) {
	request := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(userPrompt),
				},
			},
		},
		System:    systemPrompt,
		MaxTokens: c.maxTokens,
	}

	response, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		return anthropic.MessagesResponse{}, internalerrors.Wrapf(err, "API call failed")
	}
	return response, nil
}

func responseText(response anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, content := range response.Content {
		if content.Type == "text" && content.Text != nil {
			b.WriteString(*content.Text)
		}
	}
	return b.String()
}

// calculateStats prices a response at Claude Sonnet 4.5 rates.
func (c *Client) calculateStats(response anthropic.MessagesResponse, durationSeconds float64) *Stats {
	inputTokens := response.Usage.InputTokens
	outputTokens := response.Usage.OutputTokens
	cacheCreationTokens := response.Usage.CacheCreationInputTokens
	cacheReadTokens := response.Usage.CacheReadInputTokens

	// Input: $3/MTok, Output: $15/MTok
	// Cache write: $3.75/MTok, Cache read: $0.30/MTok
	inputCost := float64(inputTokens) / 1000000 * 3.0
	outputCost := float64(outputTokens) / 1000000 * 15.0
	cacheWriteCost := float64(cacheCreationTokens) / 1000000 * 3.75
	cacheReadCost := float64(cacheReadTokens) / 1000000 * 0.30

	return &Stats{
		InputTokens:         inputTokens,
		OutputTokens:        outputTokens,
		CacheCreationTokens: cacheCreationTokens,
		CacheReadTokens:     cacheReadTokens,
		CostUSD:             inputCost + outputCost + cacheWriteCost + cacheReadCost,
		DurationSeconds:     durationSeconds,
	}
}

// ModelInfo returns information about the configured model
func (c *Client) ModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"model":         c.model,
		"provider":      "Anthropic",
		"max_tokens":    c.maxTokens,
		"context_limit": 200000,
	}
}

var _ Triager = (*Client)(nil)
