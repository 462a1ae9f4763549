// Package daemonctl launches, stops and inspects the meetsync daemon process
// on behalf of the CLI.
package daemonctl
