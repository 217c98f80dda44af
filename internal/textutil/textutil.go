// Package textutil provides the text segmentation primitives used by the
// convergence scorers. It lives in internal to avoid committing to public API
// stability prematurely.
package textutil

import (
	"strings"
	"unicode"
)

// Words splits text into lowercase word tokens, stripping surrounding
// punctuation. Tokens that contain no letters or digits are dropped.
func Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w == "" {
			continue
		}
		words = append(words, strings.ToLower(w))
	}
	return words
}

// WordSet returns the set of distinct lowercase words in text.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Words(text) {
		set[w] = struct{}{}
	}
	return set
}

// Sentences splits text into sentences on terminal punctuation (., !, ?).
// Empty segments are dropped; text without terminal punctuation counts as a
// single sentence.
func Sentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Clauses counts clause separators (commas, semicolons, colons, dashes) plus
// one for the sentence itself. A sentence with no separators has one clause.
func Clauses(sentence string) int {
	n := 1
	for _, r := range sentence {
		switch r {
		case ',', ';', ':':
			n++
		}
	}
	return n
}

// PunctuationDensity returns the share of runes in text that are punctuation.
// Empty text has density zero.
func PunctuationDensity(text string) float64 {
	if text == "" {
		return 0
	}
	total, punct := 0, 0
	for _, r := range text {
		total++
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return float64(punct) / float64(total)
}

// RatioSimilarity returns min(a,b)/max(a,b), a symmetric similarity in [0,1]
// that is 1.0 when the values are equal. Two zeros are considered identical.
func RatioSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	if a < 0 || b < 0 {
		return 0
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return 1
	}
	return lo / hi
}

// Jaccard returns the Jaccard similarity of two sets: |A∩B| / |A∪B|. Two
// empty sets are considered identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
