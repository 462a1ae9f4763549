// Package timestamp extracts the recording time from a video file name.
//
// Recorders and screen capture tools embed the start time in different
// shapes. Parse tries each known shape in a fixed order and returns the
// parsed wall-clock time together with a normalized token
// (2006-01-02_15-04-05) that later becomes part of the relocated file name.
// The time carries no zone: the caller interprets it in the configured
// local offset.
package timestamp
