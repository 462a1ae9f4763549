// Package transcription supervises transcription jobs from upload to a
// finalized transcript.
//
// A job starts as a draft: the recording is uploaded, a poll goroutine waits
// for the service to finish, and the cleaned transcript is sent to the chat
// together with an AI speaker proposal and a review keyboard. Nothing is
// published from the draft phase. Speaker renames and swaps are accepted
// while the job awaits review and are echoed to the service so its record
// matches what will be finalized. Finalize is guarded by a compare-and-set
// on the job phase, so a repeated or concurrent "done" press is a no-op.
package transcription
