// Package daemonrun builds the production component graph and runs the
// daemon process until it is signalled or asked to stop over IPC.
package daemonrun
