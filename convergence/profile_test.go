package convergence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/duologue/core"
)

func TestBuiltinProfilesSumToOne(t *testing.T) {
	for _, name := range BuiltinProfileNames() {
		p, err := BuiltinProfile(name)
		require.NoError(t, err)
		assert.NoError(t, p.Weights.Validate(), "profile %s", name)
		assert.InDelta(t, 1.0, p.Weights.Sum(), weightTolerance, "profile %s", name)
	}
}

func TestBuiltinProfileUnknownName(t *testing.T) {
	_, err := BuiltinProfile("vibes")

	var cfgErr *core.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "profile", cfgErr.Field)
}

func TestBuiltinProfileCaseInsensitive(t *testing.T) {
	p, err := BuiltinProfile("Balanced")
	require.NoError(t, err)
	assert.Equal(t, "balanced", p.Name)
}

func TestNewCustomProfile(t *testing.T) {
	t.Run("valid weights", func(t *testing.T) {
		p, err := NewCustomProfile(Weights{Content: 0.4, Structure: 0.3, Sentences: 0.1, Length: 0.1, Punctuation: 0.1})
		require.NoError(t, err)
		assert.Equal(t, ProfileCustom, p.Name)
	})

	t.Run("sum off by more than tolerance", func(t *testing.T) {
		_, err := NewCustomProfile(Weights{Content: 0.5, Structure: 0.3, Sentences: 0.1, Length: 0.1, Punctuation: 0.1})

		var cfgErr *core.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "weights", cfgErr.Field)
	})

	t.Run("negative weight", func(t *testing.T) {
		_, err := NewCustomProfile(Weights{Content: 1.2, Structure: -0.2})

		var cfgErr *core.ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("drift within tolerance accepted", func(t *testing.T) {
		// 0.1+0.2+0.3+0.2+0.2 accumulates binary float error well below the
		// tolerance.
		_, err := NewCustomProfile(Weights{Content: 0.1, Structure: 0.2, Sentences: 0.3, Length: 0.2, Punctuation: 0.2})
		assert.NoError(t, err)
	})
}

func TestResolveProfile(t *testing.T) {
	t.Run("custom requires weights", func(t *testing.T) {
		_, err := ResolveProfile("custom", nil)
		assert.Error(t, err)
	})

	t.Run("builtin rejects weights", func(t *testing.T) {
		_, err := ResolveProfile("balanced", &Weights{Content: 1})
		assert.Error(t, err)
	})

	t.Run("builtin by name", func(t *testing.T) {
		p, err := ResolveProfile("structural", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.40, p.Weights.Structure)
	})
}
