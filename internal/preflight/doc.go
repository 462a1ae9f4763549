// Package preflight provides readiness checks for the external services and
// filesystem paths meetsync depends on.
//
// These checks run in three contexts:
//   - The daemon calls RunAll at startup and logs every failed check with a
//     hint, so a missing credential is visible before the first recording.
//   - "meetsync status" renders the local path and credential file checks.
//   - "meetsync config validate --probe" runs RunAll plus the token-spending
//     LLM check.
//
// A failed check never blocks startup: work that needs an unreachable
// service lands in the offline queues.
package preflight
