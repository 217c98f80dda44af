// Package importer projects completed experiment directories into a
// queryable analytical store (SQLite via GORM).
//
// Idempotency is enforced with a two-phase marker protocol: before any work
// the experiment directory is marked "importing"; only after every event has
// been projected is that marker atomically renamed to "imported". A crash
// leaves the "importing" marker in place, which the next run treats as
// "retry from scratch" — safe because the experiment's analytical projection
// is cleared before it is rebuilt. An experiment already marked "imported" is
// skipped unless the caller explicitly forces re-import.
//
// The importer only reads source event logs; it never consumes or alters
// them.
package importer
