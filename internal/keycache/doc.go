// Package keycache holds the client's session keys, one per peer plus the
// broadcast key.
//
// Keys are hydrated lazily from the KDC on a miss. Concurrent misses for
// the same peer share a single fetch. Realtime events keep the cache
// honest: kdc:new-session-key replaces the entry with the key it carries,
// and kdc:key-revoked or any lifecycle event drops it. A fetch that was in
// flight when an event arrived does not overwrite what the event left.
package keycache
