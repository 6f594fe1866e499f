// Package transport opens the byte streams the broker uses to talk to
// drivers.
//
// Local drivers are reached either through a pair of named pipes
// (<name>.in written by the broker, <name>.out read by the broker) served by
// an externally managed driver process, or by spawning the driver
// executable with its stdin and stdout as the stream. Remote drivers are
// TCP connections to another broker.
package transport
