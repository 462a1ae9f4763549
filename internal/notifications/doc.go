// Package notifications delivers operator notifications for pipeline
// milestones.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Telegram remains
// the interactive channel; ntfy carries the short operator summaries
// (published entries, connectivity changes, failures) and can be toggled per
// event class in the [notifications] section.
package notifications
