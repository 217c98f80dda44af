package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/duologue/core"
)

// Compile-time checks that the local agents satisfy core.Agent.
var (
	_ core.Agent = (*ScriptedAgent)(nil)
	_ core.Agent = (*FuncAgent)(nil)
)

// ScriptedOptions configure a ScriptedAgent.
type ScriptedOptions struct {
	// Latency is reported on every reply without actually sleeping.
	Latency time.Duration
	// CostPerReply is the fixed cost attributed to each reply.
	CostPerReply float64
	// FailAfter injects Err once the given number of replies have been
	// produced; zero disables failure injection.
	FailAfter int
	// Err is the error returned once FailAfter is reached.
	Err error
}

// ScriptedAgent replays a fixed list of replies in order. It is the local
// stand-in for a remote provider: deterministic, offline and free. When the
// script runs out the last reply repeats, so conversations longer than the
// script still progress.
type ScriptedAgent struct {
	name    string
	replies []string
	opts    ScriptedOptions

	mu    sync.Mutex
	calls int
}

// NewScriptedAgent constructs a scripted agent with at least one reply.
func NewScriptedAgent(name string, replies []string, optFns ...func(o *ScriptedOptions)) *ScriptedAgent {
	opts := ScriptedOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(replies) == 0 {
		replies = []string{"..."}
	}
	return &ScriptedAgent{name: name, replies: replies, opts: opts}
}

// Name returns the stable identifier of the agent.
func (a *ScriptedAgent) Name() string { return a.name }

// Calls returns how many replies have been produced so far.
func (a *ScriptedAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Reply returns the next scripted reply. Usage is synthesized from word
// counts so downstream accounting has plausible numbers to aggregate.
func (a *ScriptedAgent) Reply(ctx context.Context, history []core.Message) (*core.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	call := a.calls
	a.calls++
	a.mu.Unlock()

	if a.opts.FailAfter > 0 && call >= a.opts.FailAfter && a.opts.Err != nil {
		return nil, a.opts.Err
	}

	idx := call
	if idx >= len(a.replies) {
		idx = len(a.replies) - 1
	}
	text := a.replies[idx]

	prompt := 0
	for _, m := range history {
		prompt += len(strings.Fields(m.Text))
	}
	completion := len(strings.Fields(text))

	return &core.Reply{
		Text: text,
		Usage: core.TokenUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
		Cost:    a.opts.CostPerReply,
		Latency: a.opts.Latency,
	}, nil
}

// FuncAgent adapts a plain function into a core.Agent. Useful in tests where
// the reply needs to depend on the history.
type FuncAgent struct {
	name string
	fn   func(ctx context.Context, history []core.Message) (*core.Reply, error)
}

// NewFuncAgent wraps fn as an agent with the given name.
func NewFuncAgent(name string, fn func(ctx context.Context, history []core.Message) (*core.Reply, error)) *FuncAgent {
	return &FuncAgent{name: name, fn: fn}
}

// Name returns the stable identifier of the agent.
func (a *FuncAgent) Name() string { return a.name }

// Reply delegates to the wrapped function.
func (a *FuncAgent) Reply(ctx context.Context, history []core.Message) (*core.Reply, error) {
	return a.fn(ctx, history)
}
