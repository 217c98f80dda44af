// Package agent provides core.Agent implementations that do not talk to a
// remote provider, plus shared helpers for the provider adapters in the
// subpackages.
//
// The seat concept is central: every adapter is bound to one side of the
// conversation (agent_a or agent_b) and maps the shared history into
// provider chat roles relative to that seat. The adapter's own prior
// messages become "assistant" turns, the counterpart's become "user" turns.
package agent
