// Package ctlplane implements the local control plane for wlanctl.
//
// # Overview
//
// "wlanctl serve" owns the supplicant session, the daemon lifecycle and the
// radio driver. Every other CLI command is a short-lived client that asks
// the serving process to act on its behalf.
//
// # Architecture
//
// The control plane exposes a net/rpc server over a Unix socket at
// /run/wlanctl/wlanctl-ctl.sock. A file lock next to it keeps a second
// server from starting.
//
//	wlanctl command → RPC Client → Unix Socket → RPC Server → wifi.Manager
//
// # Errors
//
// Replies carry the error text plus the names of the sentinel errors it
// matched (see [Codes]). The client turns them back into a [*RemoteError]
// so errors.Is keeps working across the socket.
//
// # Audit
//
// With an [Auditor] set, every mutating request is recorded together with
// the peer's uid and pid. Control commands are recorded by verb only.
//
// # Key Types
//
//   - [Server]: RPC server bound to a [Backend]
//   - [Handler]: the per-connection "Wlan" RPC service
//   - [Client]: RPC client used by the CLI
//   - [ControlPlaneClient]: Interface for mocking in tests
//
// # Adding New RPC Methods
//
//  1. Define request/reply types in types.go
//  2. Add method to Handler in server.go
//  3. Add client method in client.go
//  4. Add interface method in client_interface.go
//  5. Add mock implementation in client_mock.go
package ctlplane
