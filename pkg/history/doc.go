// Package history is an opt-in, append-only ledger of completed run
// reports, keyed by run id: a single-bucket BoltDB database behind
// --history-db. The orchestrator itself persists nothing.
package history
