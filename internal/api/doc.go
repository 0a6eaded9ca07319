// Package api implements the HTTP REST API and WebSocket server for the
// zigbee bridge.
//
// This package provides:
//   - REST endpoints to list devices, read their state and write to them
//   - state history queries when the history store is enabled
//   - a WebSocket hub broadcasting device changes and discovery
//   - the Prometheus scrape endpoint
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin shim: every handler resolves a device through the
// DeviceBridge interface and calls one of its operations. Writes are
// coalesced on the device and sent as a single patch by DeviceBridge.Publish.
//
// # Error responses
//
// Failures use a single JSON shape ({status, code, message}). Unknown devices
// and capabilities map to 404 not_found, rejected values to 400
// validation_error, unparseable bodies to 400 bad_request and transport
// failures to 502 publish_failed.
package api
