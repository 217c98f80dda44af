// Package convergence measures how linguistically similar two agents'
// messages have become. For each turn it computes five independent component
// scores (content, structure, sentences, length, punctuation), each
// normalized to [0,1], and combines them into one bounded score using a named
// weight profile.
//
// The engine is stateless per call: the trend and the cumulative content
// overlap are derived from a State value the caller threads through
// successive Score calls. Profiles are immutable once constructed; custom
// profiles are validated (weights must sum to 1.0) at configuration time,
// never at scoring time.
package convergence
