// Package message holds the shared, reference-counted payloads the broker
// fans out to client and driver send queues.
//
// A Message is built once per routed element and pushed onto every
// interested Queue. Each push takes a reference; each Queue releases its
// reference either when the writer has fully transmitted the message or
// when the Queue is drained on disconnect. The payload is dropped exactly
// once, when the last reference goes.
//
// Queues are safe for one producer (the broker dispatcher) and one consumer
// (the endpoint's writer goroutine) running concurrently.
package message
