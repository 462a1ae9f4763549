// Package google wraps the Calendar, Sheets, and Drive APIs used by the
// pipeline behind one service-account client.
//
// Every call classifies its failure: rate limits, 5xx responses, and network
// errors are tagged services.ErrTransient so callers can retry or park the
// work offline; everything else is services.ErrExternalTool.
package google
