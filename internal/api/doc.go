// Package api defines wire-format types and converters shared by the IPC
// server and the CLI. It translates internal queue models into
// transport-friendly DTOs that commands can render without coupling to the
// store.
//
// # Key Types
//
// Asset: a recording with its lifecycle status, chosen meeting, and output.
//
// Job: a transcription job with its phase and the effective speaker names.
//
// OfflineItem: one deferred unit of work waiting for connectivity.
//
// WorkflowStatus: daemon running state, connectivity, and per-table counts.
//
// # Converters
//
// FromAsset, FromJob, FromOfflineItem, and FromStatusSummary convert queue
// and workflow models. Enums are exposed as their lowercase string values and
// timestamps use RFC3339 with milliseconds.
package api
