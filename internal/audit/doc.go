// Package audit stores broker lifecycle events and driver sessions in
// SQLite.
//
// A Recorder is registered as an events.Sink on the broker. It never
// blocks the dispatcher: events go through a bounded channel and are
// written by the Recorder's own goroutine. When the channel is full the
// event is dropped and counted.
package audit
