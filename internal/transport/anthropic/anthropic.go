// Package anthropic adapts Anthropic's Claude API to the transport.Transport
// contract, streaming text deltas back to the agentic loop. Tool calls are
// not issued natively: the loop relies on the registry's <tool_use> textual
// protocol (transport.Options.SystemPrompt already carries that preamble).
package anthropic

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/corestack/agentcore/internal/corerr"
	"github.com/corestack/agentcore/internal/transport"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens bounds a single generation when Config.MaxTokens is zero.
const DefaultMaxTokens = 4096

// Config configures a Transport.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	RetryDelay time.Duration
}

// Transport implements transport.Transport against the Anthropic Messages API.
type Transport struct {
	client     anthropic.Client
	model      string
	maxTokens  int
	maxRetries int
	retryDelay time.Duration
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Transport. APIKey is required.
func New(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, corerr.New(corerr.CodeEmbedding, "anthropic transport requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Transport{
		client:     anthropic.NewClient(opts...),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

func (t *Transport) buildParams(prompt string, opts transport.Options) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: int64(t.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: opts.SystemPrompt}}
	}
	return params
}

// Generate performs a single-shot, non-streaming generation.
func (t *Transport) Generate(ctx context.Context, prompt string, opts transport.Options) (transport.Result, error) {
	params := t.buildParams(prompt, opts)

	var msg *anthropic.Message
	var err error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		msg, err = t.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryable(err) || attempt == t.maxRetries {
			break
		}
		if waitErr := t.backoff(ctx, attempt); waitErr != nil {
			return transport.Result{}, waitErr
		}
	}
	if err != nil {
		return transport.Result{}, corerr.Wrap(corerr.CodeEmbedding, "anthropic generation failed", err)
	}

	var content string
	for _, block := range msg.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(anthropic.TextBlock); ok {
				content += tb.Text
			}
		}
	}

	return transport.Result{
		Content: content,
		Usage: &transport.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// GenerateStream streams text deltas; it always terminates with exactly one
// EventComplete event, carrying Err on failure.
func (t *Transport) GenerateStream(ctx context.Context, prompt string, opts transport.Options) (<-chan transport.StreamEvent, error) {
	params := t.buildParams(prompt, opts)
	events := make(chan transport.StreamEvent)

	go func() {
		defer close(events)

		stream := t.client.Messages.NewStreaming(ctx, params)

		var usage transport.Usage
		for stream.Next() {
			select {
			case <-ctx.Done():
				events <- transport.StreamEvent{Kind: transport.EventComplete, Err: ctx.Err()}
				return
			default:
			}

			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				usage.InputTokens = int(ms.Message.Usage.InputTokens)
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				if delta.Type == "text_delta" && delta.Text != "" {
					events <- transport.StreamEvent{Kind: transport.EventDelta, Delta: delta.Text}
				}
			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					usage.OutputTokens = int(md.Usage.OutputTokens)
				}
			}
		}

		if err := stream.Err(); err != nil {
			events <- transport.StreamEvent{Kind: transport.EventComplete, Err: corerr.Wrap(corerr.CodeEmbedding, "anthropic stream failed", err)}
			return
		}
		events <- transport.StreamEvent{Kind: transport.EventComplete, Usage: &usage}
	}()

	return events, nil
}

func (t *Transport) backoff(ctx context.Context, attempt int) error {
	delay := t.retryDelay * time.Duration(1<<uint(attempt))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if !asAnthropicError(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	ae, ok := err.(*anthropic.Error)
	if !ok {
		return false
	}
	*target = ae
	return true
}
