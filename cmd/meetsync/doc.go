// Command meetsync is the operator CLI for the meetsync daemon.
//
// Lifecycle commands (start, stop, restart, status) manage the background
// process. Queue and job commands talk to the daemon over its Unix socket and
// fall back to reading the state database when the daemon is not running.
package main
