// Package lifecycle rotates, revokes and destroys KDC sessions.
//
// State machine:
//
//	issued ──rotate──▶ rotated ──rotate──▶ rotated
//	   │                  │
//	   ├──revoke/expire───┴──▶ revoked ──destroy──▶ destroyed
//	   └──────────────destroy──────────────────────▶ destroyed
//
// Every transition writes exactly one key event and pushes one lifecycle
// notification to both participants. Rotation additionally pushes
// kdc:new-session-key so caches treat it as a fresh issuance, and
// revocation pushes kdc:key-revoked.
//
// Revoked material stays vault-sealed for the retention window and is
// then purged by the sweeper. Destroyed material is erased at once.
package lifecycle
