// Package api implements the hub's HTTP API and live event stream.
//
// Endpoints under /api/v1 report connected clients and drivers, start and
// stop drivers through the broker's control path, and query the audit
// store. /api/v1/ws streams broker events over WebSocket and /metrics
// serves the Prometheus registry.
//
// Handlers never touch broker state directly: reads go through
// Broker.Snapshot and writes through Broker.Execute, both of which run on
// the broker's dispatcher.
//
// The API carries no authentication and binds to 127.0.0.1 by default.
package api
