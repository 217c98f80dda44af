package convergence

import (
	"github.com/hupe1980/duologue/core"
	"github.com/hupe1980/duologue/internal/textutil"
)

// contentScore measures vocabulary overlap between the two messages as the
// Jaccard similarity of their word sets.
func contentScore(a, b string) float64 {
	return textutil.Jaccard(textutil.WordSet(a), textutil.WordSet(b))
}

// structureScore measures similarity of structural shape: how sentences and
// clauses pattern within each message. It compares the mean words-per-sentence
// and mean clauses-per-sentence of the two messages.
func structureScore(a, b string) float64 {
	wordsA, clausesA := sentenceShape(a)
	wordsB, clausesB := sentenceShape(b)
	return 0.5*textutil.RatioSimilarity(wordsA, wordsB) + 0.5*textutil.RatioSimilarity(clausesA, clausesB)
}

// sentenceShape returns the mean words per sentence and mean clauses per
// sentence of text. Empty text has zero shape.
func sentenceShape(text string) (meanWords, meanClauses float64) {
	sentences := textutil.Sentences(text)
	if len(sentences) == 0 {
		return 0, 0
	}
	var words, clauses int
	for _, s := range sentences {
		words += len(textutil.Words(s))
		clauses += textutil.Clauses(s)
	}
	n := float64(len(sentences))
	return float64(words) / n, float64(clauses) / n
}

// sentencesScore measures similarity of the sentence-count profile.
func sentencesScore(a, b string) float64 {
	return textutil.RatioSimilarity(float64(len(textutil.Sentences(a))), float64(len(textutil.Sentences(b))))
}

// lengthScore measures similarity of message length, blending character and
// word counts. Symmetric, 1.0 when equal.
func lengthScore(a, b string) float64 {
	chars := textutil.RatioSimilarity(float64(len([]rune(a))), float64(len([]rune(b))))
	words := textutil.RatioSimilarity(float64(len(textutil.Words(a))), float64(len(textutil.Words(b))))
	return 0.5*chars + 0.5*words
}

// punctuationScore measures similarity of punctuation density.
func punctuationScore(a, b string) float64 {
	return textutil.RatioSimilarity(textutil.PunctuationDensity(a), textutil.PunctuationDensity(b))
}

// componentScores computes all five component scores for a message pair.
func componentScores(a, b string) core.ComponentScores {
	return core.ComponentScores{
		Content:     contentScore(a, b),
		Structure:   structureScore(a, b),
		Sentences:   sentencesScore(a, b),
		Length:      lengthScore(a, b),
		Punctuation: punctuationScore(a, b),
	}
}
