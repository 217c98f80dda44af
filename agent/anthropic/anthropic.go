// Package anthropic provides a core.Agent backed by the Anthropic Messages
// API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/duologue/core"
)

// Compile-time check that Agent satisfies core.Agent.
var _ core.Agent = (*Agent)(nil)

// Options configure the Anthropic agent adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	// SystemPrompt, when set, is sent as the system block on every call.
	SystemPrompt string
	// CostPerKInput and CostPerKOutput are USD per 1000 tokens and drive the
	// per-reply cost estimate; zero disables cost accounting.
	CostPerKInput  float64
	CostPerKOutput float64
}

// Agent wraps the Anthropic Messages API behind the core.Agent interface,
// bound to one seat of the conversation.
type Agent struct {
	client *anthropic.Client
	seat   core.Speaker
	opts   Options
}

// New creates an Anthropic agent for the given seat using the official
// client.
func New(seat core.Speaker, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Agent{client: &client, seat: seat, opts: opts}
}

// NewFromClient creates an Anthropic agent for the given seat from an
// existing client.
func NewFromClient(client *anthropic.Client, seat core.Speaker, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, seat: seat, opts: opts}
}

// Name returns the stable identifier of the agent (provider/model).
func (a *Agent) Name() string {
	return fmt.Sprintf("anthropic/%s", a.opts.Model)
}

// Reply produces the next message given the full prior history.
func (a *Agent) Reply(ctx context.Context, history []core.Message) (*core.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       a.opts.Model,
		Messages:    a.buildMessages(history),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if a.opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.opts.SystemPrompt}}
	}

	start := time.Now()

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.classify(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return nil, core.NewProviderError(core.ProviderAPI, "anthropic", "response contained no text content")
	}

	usage := core.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}

	return &core.Reply{
		Text:    sb.String(),
		Usage:   usage,
		Cost:    a.cost(usage),
		Latency: time.Since(start),
	}, nil
}

// buildMessages maps the shared history into Anthropic chat messages relative
// to this agent's seat.
func (a *Agent) buildMessages(history []core.Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		if m.Text == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Text)
		if m.RoleFor(a.seat) == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

// cost estimates the USD cost of a reply from configured per-1K rates.
func (a *Agent) cost(usage core.TokenUsage) float64 {
	return float64(usage.PromptTokens)/1000*a.opts.CostPerKInput +
		float64(usage.CompletionTokens)/1000*a.opts.CostPerKOutput
}

// classify maps SDK and context failures onto the fixed provider error
// taxonomy.
func (a *Agent) classify(err error) *core.ProviderError {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return core.NewProviderError(core.ProviderRateLimit, "anthropic", "rate limited").WithCause(err)
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return core.NewProviderError(core.ProviderAuth, "anthropic", "authentication rejected").WithCause(err)
		case apierr.StatusCode == 408 || apierr.StatusCode == 504:
			return core.NewProviderError(core.ProviderTimeout, "anthropic", "provider timed out").WithCause(err)
		default:
			return core.NewProviderError(core.ProviderAPI, "anthropic",
				fmt.Sprintf("api error (status %d)", apierr.StatusCode)).WithCause(err)
		}
	}
	return core.AsProviderError(err, "anthropic")
}
