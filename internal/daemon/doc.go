// Package daemon coordinates the long-running meetsync process.
//
// It wires configuration, the SQLite store, the workflow manager, the watch
// folder, the connectivity probe and the chat dispatcher into a single
// lifecycle with flock-based locking to prevent multiple instances. The daemon
// also exposes the operator surface used over IPC (manual adds, job actions,
// offline queue flushes) and an optional read-only HTTP status API.
//
// Keep orchestration logic here: individual pipeline steps live in their
// respective packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
