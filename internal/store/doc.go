// Package store provides persistence for CipherLink.
//
// Server side, two interchangeable implementations of domain.Store are
// offered:
//   - BadgerStore: embedded key-value store (default driver, also used
//     in-memory for tests and the "memory" driver)
//   - SQLStore: SQLite with one table per record type; a partial unique
//     index keeps at most one live session per contact link
//
// Both treat every backend failure as domain.ErrStorage. Key material
// never reaches a store in the clear: the Vault seals it first under a
// master key derived from the operator passphrase.
//
// Client side, file stores keep the passphrase-encrypted identity
// (IdentityFileStore) and per-server registration profiles
// (ProfileFileStore) under the configured home directory. Writes go
// through a temp file and rename so a crash never leaves a torn file.
package store
