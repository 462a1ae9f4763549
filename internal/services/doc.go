// Package services defines shared utilities consumed by the pipeline steps
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp asset IDs, job IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent asset statuses (failed, skipped, queued offline).
//
// Client packages for Google, Scriberr, Telegram, the LLM providers, and the
// Postgres archive live in subpackages.
package services
