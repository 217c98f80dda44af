// Package engine orchestrates experiments: batches of concurrent
// conversations between one fixed agent pair, sharing an event store, a rate
// pacer and an atomically maintained manifest.
//
// Failure isolation is the central design property. Each conversation is an
// independent trial; when one fails its siblings run to their own terminal
// states, and the experiment still reaches post-processing with a complete,
// importable directory. Only a conversation left non-terminal marks the
// experiment failed.
package engine
