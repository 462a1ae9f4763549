// Package messaging carries the human side of the pipeline: prompts with
// inline buttons, free-text replies, and the dispatcher that turns inbound
// chat events into exactly one action each.
//
// Buttons never carry their payload. Each button holds a short ULID token
// whose action (select a candidate, cancel, rename a speaker, finalize, ...)
// is persisted in the queue store, so prompts keep working across restarts
// and every token is honoured at most once.
package messaging
