// Package core provides the foundational domain types and interfaces used by
// duologue. It defines the core abstractions for:
//
//   - Conversations (two-agent turn-taking containers with lifecycle state)
//   - Turns (immutable message pairs with per-turn convergence scores)
//   - Events (append-only records of everything that happened)
//   - Experiments (groups of conversations sharing one configuration)
//   - The Agent capability boundary (one Reply operation, fixed error set)
//   - Pluggable stores for event logs and experiment manifests
//
// The package intentionally keeps implementation concerns (persistence,
// scoring, orchestration, concrete provider clients) out of scope, exposing
// small interfaces to enable custom backends and extensions.
package core
