// Package workflow drives detected recordings from the watch folder to a
// published meeting log entry.
//
// The Manager accepts file paths on its intake channel, records each one as
// an asset, and advances it through timestamp parsing, calendar resolution,
// human disambiguation, relocation, transcription and publication. Every
// step is a compare-and-set transition on the asset row, so replays after a
// restart and duplicate button presses resolve to a single winner.
//
// While the network is down, recordings and log entries wait in the offline
// queues; FlushOffline drains them in FIFO order when connectivity returns.
// The Manager also implements messaging.Handler and routes button presses,
// free-text replies and chat commands to the disambiguation manager and the
// transcription supervisor.
package workflow
