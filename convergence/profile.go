package convergence

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hupe1980/duologue/core"
)

// weightTolerance absorbs floating-point drift when checking that profile
// weights sum to 1.0.
const weightTolerance = 1e-9

// Weights assigns the relative importance of each convergence component.
type Weights struct {
	Content     float64 `json:"content" yaml:"content"`
	Structure   float64 `json:"structure" yaml:"structure"`
	Sentences   float64 `json:"sentences" yaml:"sentences"`
	Length      float64 `json:"length" yaml:"length"`
	Punctuation float64 `json:"punctuation" yaml:"punctuation"`
}

// Sum returns the total weight mass.
func (w Weights) Sum() float64 {
	return w.Content + w.Structure + w.Sentences + w.Length + w.Punctuation
}

// Validate checks that every weight is non-negative and that the weights sum
// to 1.0 within tolerance. Violations surface as *core.ConfigError.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"content":     w.Content,
		"structure":   w.Structure,
		"sentences":   w.Sentences,
		"length":      w.Length,
		"punctuation": w.Punctuation,
	} {
		if v < 0 {
			return core.NewConfigError("weights."+name, fmt.Sprintf("weight must be non-negative, got %g", v))
		}
	}
	if math.Abs(w.Sum()-1.0) > weightTolerance {
		return core.NewConfigError("weights", fmt.Sprintf("weights must sum to 1.0, got %g", w.Sum()))
	}
	return nil
}

// Profile is a named, immutable weight table. Construct via BuiltinProfile or
// NewCustomProfile; never mutate a shared profile's weights in place.
type Profile struct {
	Name    string
	Weights Weights
}

// ProfileCustom names a caller-supplied weight table.
const ProfileCustom = "custom"

// builtinProfiles holds the fixed weight tables shipped with the engine.
// Each table sums to 1.0; this is asserted by tests rather than at init time.
var builtinProfiles = map[string]Weights{
	"balanced":   {Content: 0.30, Structure: 0.25, Sentences: 0.15, Length: 0.15, Punctuation: 0.15},
	"structural": {Content: 0.10, Structure: 0.40, Sentences: 0.20, Length: 0.15, Punctuation: 0.15},
	"semantic":   {Content: 0.50, Structure: 0.20, Sentences: 0.10, Length: 0.10, Punctuation: 0.10},
	"strict":     {Content: 0.25, Structure: 0.25, Sentences: 0.20, Length: 0.15, Punctuation: 0.15},
}

// BuiltinProfileNames returns the sorted names of the shipped profiles.
func BuiltinProfileNames() []string {
	names := make([]string, 0, len(builtinProfiles))
	for name := range builtinProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinProfile returns a copy of the named shipped profile, or a
// *core.ConfigError if the name is unknown.
func BuiltinProfile(name string) (Profile, error) {
	w, ok := builtinProfiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, core.NewConfigError("profile",
			fmt.Sprintf("unknown profile %q, expected one of %s or %s", name, strings.Join(BuiltinProfileNames(), ", "), ProfileCustom))
	}
	return Profile{Name: strings.ToLower(name), Weights: w}, nil
}

// NewCustomProfile builds the "custom" profile from caller-supplied weights,
// validating them at construction time.
func NewCustomProfile(w Weights) (Profile, error) {
	if err := w.Validate(); err != nil {
		return Profile{}, err
	}
	return Profile{Name: ProfileCustom, Weights: w}, nil
}

// ResolveProfile resolves a profile by name. For the custom profile the
// supplied weights are validated and used; for built-in names the weights
// argument must be nil (shipped tables are not overridable).
func ResolveProfile(name string, custom *Weights) (Profile, error) {
	if strings.ToLower(name) == ProfileCustom {
		if custom == nil {
			return Profile{}, core.NewConfigError("profile", "custom profile requires explicit weights")
		}
		return NewCustomProfile(*custom)
	}
	if custom != nil {
		return Profile{}, core.NewConfigError("profile",
			fmt.Sprintf("weights may only be supplied with the %s profile", ProfileCustom))
	}
	return BuiltinProfile(name)
}
