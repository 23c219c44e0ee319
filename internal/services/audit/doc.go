// Package audit records key events.
//
// Every KeyEvent is anchored in the ledger before it is written to the
// event log: the block's message hash is the digest of the event's
// canonical JSON, so rewriting an event in the log no longer matches the
// chain.
package audit
