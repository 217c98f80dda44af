package convergence

import (
	"math"

	"github.com/hupe1980/duologue/core"
)

// State is the running aggregate the caller threads through successive Score
// calls for one conversation. The zero value is the correct initial state.
type State struct {
	// PrevCombined is the combined score of the immediately prior turn.
	PrevCombined float64 `json:"prev_combined"`
	// HasPrev distinguishes turn 0 (trend undefined, reported as zero) from
	// later turns.
	HasPrev bool `json:"has_prev"`
	// ContentTotal accumulates content scores across all turns so far.
	ContentTotal float64 `json:"content_total"`
	// Turns counts the scored turns so far.
	Turns int `json:"turns"`
}

// CumulativeOverlap returns the mean content score across all scored turns,
// or zero before the first turn.
func (s State) CumulativeOverlap() float64 {
	if s.Turns == 0 {
		return 0
	}
	return s.ContentTotal / float64(s.Turns)
}

// Result is the scoring outcome for one turn.
type Result struct {
	// Scores are the independent component scores, each in [0,1].
	Scores core.ComponentScores `json:"scores"`
	// Combined is the weighted sum of the components, clamped to [0,1].
	Combined float64 `json:"combined"`
	// Trend is the signed delta against the prior turn's combined score,
	// zero on turn 0.
	Trend float64 `json:"trend"`
	// CumulativeOverlap is the mean content score across all turns so far,
	// including this one.
	CumulativeOverlap float64 `json:"cumulative_overlap"`
}

// Engine combines per-turn component scores using an immutable weight
// profile. It holds no cross-call state; callers supply the running State.
type Engine struct {
	profile Profile
}

// NewEngine creates an engine for the given profile. The profile is assumed
// validated (BuiltinProfile / NewCustomProfile enforce the weight invariant).
func NewEngine(profile Profile) *Engine {
	return &Engine{profile: profile}
}

// Profile returns the engine's weight profile.
func (e *Engine) Profile() Profile { return e.profile }

// Score computes the convergence result for one message pair and returns the
// advanced running state. The combined score is clamped to [0,1] to absorb
// floating-point drift in the weighted sum.
func (e *Engine) Score(messageA, messageB string, state State) (Result, State) {
	scores := componentScores(messageA, messageB)
	w := e.profile.Weights

	combined := clamp01(scores.Content*w.Content +
		scores.Structure*w.Structure +
		scores.Sentences*w.Sentences +
		scores.Length*w.Length +
		scores.Punctuation*w.Punctuation)

	var trend float64
	if state.HasPrev {
		trend = combined - state.PrevCombined
	}

	next := State{
		PrevCombined: combined,
		HasPrev:      true,
		ContentTotal: state.ContentTotal + scores.Content,
		Turns:        state.Turns + 1,
	}

	return Result{
		Scores:            scores,
		Combined:          combined,
		Trend:             trend,
		CumulativeOverlap: next.CumulativeOverlap(),
	}, next
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
