// Package app wires application dependencies for both binaries.
//
// For the CLI, NewWire builds the local identity and profile stores and the
// relay client from Config; Wire.Open then unlocks the identity and
// returns a Session with a key cache and message client bound to it.
//
// For the server, NewDaemon builds the store, vault, ledger and every
// service from a config.Config and exposes them behind the REST surface.
package app
