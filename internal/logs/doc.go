// Package logs reads the daemon log file for the CLI "logs" command and the
// LogTail RPC.
//
// Reads are bounded: a negative offset returns the last N lines, a
// non-negative offset resumes where the previous read stopped, and follow
// mode polls until new lines arrive or the wait elapses. A Match filter keeps
// only lines mentioning a job, asset or correlation id.
package logs
