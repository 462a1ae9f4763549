// Package calendar matches recording times against calendar events.
//
// A Resolver asks its Source for the events covering a recording instant and,
// when none cover it, for every event on the recording's local date. The
// outcome is a single match, an ambiguous candidate list for the human, or no
// meeting at all. Transient Source failures are retried with a fixed delay;
// permanent failures surface immediately.
package calendar
