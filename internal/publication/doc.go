// Package publication turns a finalized transcription job into exactly one
// row in the meeting log.
//
// Builder records the job-derived fields of an entry up front and resolves
// the rest when the entry is appended: the rendered transcript is uploaded as
// a document, the meeting type and summary come from the text completion
// collaborator, and the project tag is chosen by keyword match before falling
// back to a classifier. Publisher stores the
// entry keyed by job id and appends it to the sheet behind a
// pending → publishing → published compare-and-set, so a repeated finalize
// never produces a second row. Entries that cannot be appended while offline
// wait on the log entry queue; one that keeps failing is parked so the
// entries behind it still drain.
package publication
