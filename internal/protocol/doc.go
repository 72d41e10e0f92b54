// Package protocol implements the request and response exchange that follows the
// mediarelay handshake.
//
// After the handshake every unit is an AEAD frame (see package codec). The client sends,
// in order:
//
//	header      u16 json_size ‖ u8 mediatype_size ‖ u40 payload_size (length-prefixed frame)
//	parameters  UTF-8 JSON, json_size bytes                            (length-prefixed frame)
//	media type  UTF-8 file extension, mediatype_size bytes             (length-prefixed frame)
//	payload     chunk frames whose plaintexts sum to payload_size     (unprefixed)
//
// The server answers with a one byte tag frame (0x01 success, 0x00 error), a JSON frame
// describing the result and, on success, the output file as chunk frames.
package protocol
