// Package ledger implements the audit hash chain.
//
// Every block commits to its height, the previous block's hash, a message
// hash, a nonce, the difficulty, a digest of its payload and its creation
// time. A block is accepted only once its SHA-256 hash has at least
// Difficulty leading zero bits; the search for such a nonce is a small
// proof of work that makes silent rewrites expensive.
//
// # Concurrency
//
// Append is single-writer: callers queue on the chain mutex and each one
// reads the head, mines and stores before the next begins. Validate and
// Blocks never take the mutex; they read the head once and scan up to
// that snapshot, so they run alongside appends.
//
// Validation has no side effects. A broken chain is reported, never
// repaired, and further appends keep working.
package ledger
