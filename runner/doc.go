// Package runner drives the turn loop of a single two-agent conversation.
//
// A Runner owns the in-memory conversation state while it executes: it
// requests a reply from agent A using the full prior history, then from agent
// B, scores the resulting pair with the convergence engine, applies the
// configured stop policy and appends durable events for everything that
// happened. Turns within one conversation are strictly sequential; turn n+1
// requires the completed message pair of turn n as input context.
//
// Lifecycle: created → running → {paused ⇄ running} → one of {completed,
// failed, interrupted}. Terminal states admit no further transitions.
// Interruption is cooperative: it is honored at well-defined suspension
// points (before each agent call and after each turn), never preempting a
// call already in flight, and takes precedence over a natural stop decision
// received concurrently.
package runner
