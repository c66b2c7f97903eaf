// Package stream adapts codecs to byte streams.
//
// Ownership boundary:
// - per-connection cumulative buffers and the decode retry loop
// - one-write-per-value encoding for outbound values
// - connection registry attributing decoded messages to their origin
//
// Transports own sockets and connection lifecycle; they feed chunks in with
// Adapter.Receive and tear the connection down when it returns an error.
package stream
