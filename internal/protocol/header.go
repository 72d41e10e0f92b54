package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the size of the decrypted request header.
	HeaderSize = 8

	// MaxJSONSize is the largest parameters blob the header can describe.
	MaxJSONSize = 1<<16 - 1

	// MaxMediaTypeSize is the largest media type tag the header can describe.
	MaxMediaTypeSize = 1<<8 - 1

	// MaxPayloadSize is the largest payload the 40-bit size field can describe.
	MaxPayloadSize = 1<<40 - 1
)

// Header is the fixed-size request header.
type Header struct {
	JSONSize      uint16
	MediaTypeSize uint8
	PayloadSize   uint64
}

// Encode packs the header into its 8-byte wire form.
func (h Header) Encode() ([]byte, error) {
	if h.PayloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("payload size %d does not fit in 40 bits", h.PayloadSize)
	}

	b := make([]byte, HeaderSize)
	binary.BigEndian.PutUint16(b[0:2], h.JSONSize)
	b[2] = h.MediaTypeSize

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], h.PayloadSize)
	copy(b[3:], size[3:])
	return b, nil
}

// Validate rejects headers that cannot describe a usable request.
func (h Header) Validate() error {
	if h.PayloadSize == 0 {
		return SizeError()
	}
	return nil
}

// DecodeHeader unpacks an 8-byte header. It does not validate the sizes; see Validate.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, MalformedError(fmt.Sprintf("header must be %d bytes, got %d", HeaderSize, len(b)))
	}

	var size [8]byte
	copy(size[3:], b[3:])

	return Header{
		JSONSize:      binary.BigEndian.Uint16(b[0:2]),
		MediaTypeSize: b[2],
		PayloadSize:   binary.BigEndian.Uint64(size[:]),
	}, nil
}
