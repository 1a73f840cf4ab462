// Package protocol implements the realtime WebSocket message set.
// It handles parsing and validation of inbound client messages and the
// construction of outbound server messages for the /v1/realtime endpoint.
package protocol
