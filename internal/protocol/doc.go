// Package protocol defines the structured request, response, and event
// envelopes carried over the service port. The wire framing underneath
// (HTTP bodies, websocket frames) belongs to the transport; this package
// only sees decoded JSON.
package protocol
