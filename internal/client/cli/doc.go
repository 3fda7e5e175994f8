// Package cli provides the interactive myid command-line client.
//
// It wires configuration, the local profile database, the passkey gateway
// and the optional sync and backup sinks, then runs a REPL over the
// profile. Typical flow: recover any interrupted protection switch, pass
// the startup lock if one is set, start the connectivity watcher and
// execute user commands.
//
// Key features:
//   - Show / reveal / edit profile fields
//   - Section and field locks gated by a passkey assertion
//   - Passkey protection on and off, startup lock
//   - Password-protected export and import, optionally through S3
//   - vCard payload for QR sharing
//   - Background sync of profile changes
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
