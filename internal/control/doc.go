// Package control implements the broker's dynamic control channel: a
// line-oriented command stream, normally a named pipe, used to start and
// stop drivers while the broker runs.
//
// Commands:
//
//	start <driver> [-n "device"] [-c "config"] [-s "skeleton"] [-p "prefix"]
//	stop <driver> [-n "device"]
//
// A driver containing '@' names a remote driver ([device]@host[:port]); for
// those, everything after the verb is the driver spec with quotes removed.
package control
