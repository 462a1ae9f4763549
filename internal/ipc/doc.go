// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server owns the socket file and converts queue records into the api
// package DTOs before they cross the wire. A Stop request stops the daemon and
// then runs the shutdown hook so the daemon process exits.
package ipc
