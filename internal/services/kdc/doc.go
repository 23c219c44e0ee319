// Package kdc is the Key Distribution Center.
//
// It mints one symmetric session key per accepted contact link, seals a
// copy to each participant's identity key and pushes those copies over the
// realtime channel. Issuance is at most once per live link: requests for
// the same link serialize on a per-link lock and the second caller gets
// the first caller's session back.
//
// The KDC also answers read-side questions: session metadata for
// participants, the caller's copy of the live key for cache hydration, and
// the global broadcast key.
package kdc
