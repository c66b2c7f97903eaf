// Package protocol groups the wire-format packages.
//
// Ownership boundary:
// - buffer: cursor-tracked byte storage shared by encoders and decoders
// - codec: composable primitive and composite codecs
// - stream: chunked decoding and per-connection adapters
// - schema: TOML codec definitions compiled into codec trees
// - frame, tlv: fixed envelope and field-level codecs built on codec
package protocol
