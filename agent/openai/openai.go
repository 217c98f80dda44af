// Package openai provides a core.Agent backed by the OpenAI Chat Completions
// API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/duologue/core"
)

// Compile-time check that Agent satisfies core.Agent.
var _ core.Agent = (*Agent)(nil)

// Options configure the OpenAI agent adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	// SystemPrompt, when set, is prepended as a system message on every call.
	SystemPrompt string
	// CostPerKInput and CostPerKOutput are USD per 1000 tokens and drive the
	// per-reply cost estimate; zero disables cost accounting.
	CostPerKInput  float64
	CostPerKOutput float64
}

// Agent wraps the OpenAI Chat Completions API behind the core.Agent
// interface, bound to one seat of the conversation.
type Agent struct {
	client *openai.Client
	seat   core.Speaker
	opts   Options
}

// New creates an OpenAI agent for the given seat using the official client.
func New(seat core.Speaker, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Agent{client: &client, seat: seat, opts: opts}
}

// NewFromClient creates an OpenAI agent for the given seat from an existing
// client.
func NewFromClient(client *openai.Client, seat core.Speaker, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{client: client, seat: seat, opts: opts}
}

// Name returns the stable identifier of the agent (provider/model).
func (a *Agent) Name() string {
	return fmt.Sprintf("openai/%s", a.opts.Model)
}

// Reply produces the next message given the full prior history.
func (a *Agent) Reply(ctx context.Context, history []core.Message) (*core.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            a.buildMessages(history),
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}

	start := time.Now()

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError(core.ProviderAPI, "openai", "no choices returned")
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		return nil, core.NewProviderError(core.ProviderAPI, "openai", "response contained no text content")
	}

	usage := core.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	return &core.Reply{
		Text:    text,
		Usage:   usage,
		Cost:    a.cost(usage),
		Latency: time.Since(start),
	}, nil
}

// buildMessages maps the shared history into OpenAI chat messages relative to
// this agent's seat.
func (a *Agent) buildMessages(history []core.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if a.opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(a.opts.SystemPrompt))
	}
	for _, m := range history {
		if m.Text == "" {
			continue
		}
		if m.RoleFor(a.seat) == "assistant" {
			messages = append(messages, openai.AssistantMessage(m.Text))
		} else {
			messages = append(messages, openai.UserMessage(m.Text))
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
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == 429:
			return core.NewProviderError(core.ProviderRateLimit, "openai", "rate limited").WithCause(err)
		case apierr.StatusCode == 401 || apierr.StatusCode == 403:
			return core.NewProviderError(core.ProviderAuth, "openai", "authentication rejected").WithCause(err)
		case apierr.StatusCode == 408 || apierr.StatusCode == 504:
			return core.NewProviderError(core.ProviderTimeout, "openai", "provider timed out").WithCause(err)
		default:
			return core.NewProviderError(core.ProviderAPI, "openai",
				fmt.Sprintf("api error (status %d)", apierr.StatusCode)).WithCause(err)
		}
	}
	return core.AsProviderError(err, "openai")
}
