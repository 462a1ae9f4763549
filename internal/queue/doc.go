// Package queue persists pipeline state in SQLite and exposes the keyed
// records and FIFO queues the workflow coordinates through.
//
// The Store owns assets, disambiguation sessions, transcription jobs, meeting
// log entries, the two offline queues, and the callback token table. Every
// deciding mutation is a single conditional UPDATE checked by RowsAffected,
// so concurrent callers racing on the same record get exactly one winner and
// the loser sees ErrConflict.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package queue
