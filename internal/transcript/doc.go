// Package transcript turns raw diarized transcription output into speaker
// blocks and renders them for review, storage, and publication.
//
// Clean locates the first "segments" array anywhere in the payload, reads
// each segment through a list of field fallbacks, drops empty text, and merges
// consecutive segments by the same speaker. Format and RenderHTML apply a
// slot → name mapping when printing.
package transcript
