// Package scriberr talks to a Scriberr transcription server.
//
// The client uploads a video, starts a diarized WhisperX run, polls its
// status, downloads the raw transcript, pushes speaker renames, and cancels
// runs. Every request carries the X-API-Key header. Failures are classified
// with the services markers: network errors, 408, 429, and 5xx responses are
// transient; other statuses are permanent.
package scriberr
