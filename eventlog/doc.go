// Package eventlog implements the durable persistence layer for experiments:
// append-only per-conversation event logs and the experiment manifest.
//
// Event logs are newline-delimited JSON files, one per conversation, named
// deterministically from the conversation id. Every append is flushed to
// stable storage before it returns, so the runner never observes an event as
// committed that a crash could silently drop. Logs are write-once,
// append-only: recovery after a crash replays from the last record onward.
//
// The manifest is a single structured document summarizing all conversations
// of an experiment. Updates build the new content fully in a side location
// and atomically swap it into place, so a crash mid-update leaves either the
// old or the new manifest intact, never a partially written one.
package eventlog
