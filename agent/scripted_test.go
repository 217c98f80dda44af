package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duologue/core"
)

func TestScriptedAgentReplaysInOrder(t *testing.T) {
	a := NewScriptedAgent("scripted/test", []string{"one", "two"})

	for _, want := range []string{"one", "two", "two", "two"} {
		reply, err := a.Reply(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, want, reply.Text, "the last reply repeats once the script runs out")
	}
	assert.Equal(t, 4, a.Calls())
}

func TestScriptedAgentSynthesizesUsage(t *testing.T) {
	a := NewScriptedAgent("scripted/test", []string{"three short words"})
	history := []core.Message{
		{Speaker: core.SpeakerB, Text: "two words"},
		{Speaker: core.SpeakerA, Text: "one"},
	}

	reply, err := a.Reply(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, 3, reply.Usage.PromptTokens)
	assert.Equal(t, 3, reply.Usage.CompletionTokens)
	assert.Equal(t, 6, reply.Usage.TotalTokens)
}

func TestScriptedAgentFailureInjection(t *testing.T) {
	boom := core.NewProviderError(core.ProviderRateLimit, "scripted", "injected")
	a := NewScriptedAgent("scripted/test", []string{"ok"}, func(o *ScriptedOptions) {
		o.FailAfter = 2
		o.Err = boom
	})

	for range 2 {
		_, err := a.Reply(context.Background(), nil)
		require.NoError(t, err)
	}

	_, err := a.Reply(context.Background(), nil)
	var pe *core.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, core.ProviderRateLimit, pe.Code)
}

func TestScriptedAgentHonorsContext(t *testing.T) {
	a := NewScriptedAgent("scripted/test", []string{"never"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Reply(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFuncAgent(t *testing.T) {
	sentinel := errors.New("sentinel")
	a := NewFuncAgent("func/test", func(_ context.Context, history []core.Message) (*core.Reply, error) {
		if len(history) == 0 {
			return nil, sentinel
		}
		return &core.Reply{Text: history[len(history)-1].Text}, nil
	})

	assert.Equal(t, "func/test", a.Name())

	_, err := a.Reply(context.Background(), nil)
	assert.ErrorIs(t, err, sentinel)

	reply, err := a.Reply(context.Background(), []core.Message{{Text: "echo"}})
	require.NoError(t, err)
	assert.Equal(t, "echo", reply.Text)
}
