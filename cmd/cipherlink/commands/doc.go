// Package commands defines the cipherlink CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local identity
//   - fingerprint    Print the identity fingerprint
//   - register       Publish your public keys to a KDC server
//   - link           Link with a contact
//   - request-key    Ask the KDC for a session key with a contact
//   - session-info   Show a session's metadata
//   - rotate         Rotate a session key
//   - revoke         Revoke a session key
//   - destroy        Destroy a session key and its material
//   - events         List key lifecycle events
//   - pfs            Run an ephemeral handshake
//   - send           Encrypt and send a message
//   - history        Fetch and decrypt past messages
//   - listen         Stream realtime events and incoming messages
//   - chain          Print the audit chain
//   - validate       Validate the audit chain
//
// # Implementation
//
// The root command builds the local stores and the relay client before any
// subcommand runs. Commands that need keys unlock the identity with the
// passphrase and get a Session with a per-process session key cache.
package commands
