package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/framing"
)

// WriteRequest sends a complete request: header, parameters, media type, then size bytes
// read from payload as chunk frames.
func WriteRequest(ctx context.Context, f *framing.Framer, c *codec.Codec, params *Parameters, mediaType string, payload io.Reader, size int64, chunkSize int) error {
	rawParams, err := params.Encode()
	if err != nil {
		return err
	}
	if len(mediaType) > MaxMediaTypeSize {
		return fmt.Errorf("media type is %d bytes, larger than %d", len(mediaType), MaxMediaTypeSize)
	}

	header, err := Header{
		JSONSize:      uint16(len(rawParams)),
		MediaTypeSize: uint8(len(mediaType)),
		PayloadSize:   uint64(size),
	}.Encode()
	if err != nil {
		return err
	}

	for _, unit := range [][]byte{header, rawParams, []byte(mediaType)} {
		if err := f.WriteSealed(c, unit); err != nil {
			return ConnectionError(err)
		}
	}
	return SendPayload(ctx, f, c, payload, size, chunkSize)
}

// ReadResponse reads a response. On success the output payload is written to w.
//
// The first frame only arrives once the server has finished processing, so wait replaces
// the framer's timeout for it. Zero waits until ctx is done. The frames after it use the
// framer's own timeout again.
func ReadResponse(ctx context.Context, f *framing.Framer, c *codec.Codec, w io.Writer, chunkSize int, wait time.Duration) (*Response, error) {
	frameTimeout := f.Timeout()
	f.SetTimeout(wait)
	tag, err := f.ReadSealed(c, 1)
	f.SetTimeout(frameTimeout)
	if err != nil {
		return nil, readError(err)
	}
	if len(tag) != 1 {
		return nil, fmt.Errorf("response tag must be 1 byte, got %d", len(tag))
	}

	body, err := f.ReadSealed(c, MaxResponseBodySize)
	if err != nil {
		return nil, readError(err)
	}

	switch tag[0] {
	case TagError:
		var e ErrorBody
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fmt.Errorf("while decoding error response: %w", err)
		}
		return &Response{Error: &e}, nil
	case TagSuccess:
		var m SuccessMetadata
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("while decoding success metadata: %w", err)
		}
		if m.FileSize < 0 || m.FileSize > MaxPayloadSize {
			return nil, fmt.Errorf("invalid file size %d in success metadata", m.FileSize)
		}
		if _, err := ReceivePayload(ctx, f, c, w, m.FileSize, chunkSize); err != nil {
			return nil, err
		}
		return &Response{Success: &m}, nil
	default:
		return nil, fmt.Errorf("unknown response tag 0x%02x", tag[0])
	}
}
