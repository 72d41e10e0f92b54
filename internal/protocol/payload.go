package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/framing"
)

// SendPayload reads exactly size bytes from r and writes them as chunk frames of at most
// chunkSize plaintext bytes each.
func SendPayload(ctx context.Context, f *framing.Framer, c *codec.Codec, r io.Reader, size int64, chunkSize int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	buf := make([]byte, chunkSize)
	for remaining := size; remaining > 0; {
		if err := ctx.Err(); err != nil {
			return ConnectionError(err)
		}

		n := framing.NextChunkSize(remaining, chunkSize)
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return fmt.Errorf("while reading payload source with %d of %d bytes left: %w", remaining, size, err)
		}

		frame, err := c.Seal(buf[:n])
		if err != nil {
			return err
		}
		if err := f.WriteChunk(frame); err != nil {
			return TransmissionError(err)
		}
		remaining -= int64(n)
	}
	return nil
}

// ReceivePayload reads the chunk frames carrying size plaintext bytes, decrypts them and
// writes the plaintext to w. It returns the number of bytes written to w.
//
// If w fails, the chunk frames still expected for the outstanding plaintext are consumed
// and discarded so that the stream stays aligned, and a storage error is returned. Read and
// authentication failures are returned as is; the stream cannot be trusted after them.
func ReceivePayload(ctx context.Context, f *framing.Framer, c *codec.Codec, w io.Writer, size int64, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	var written int64
	for remaining := size; remaining > 0; {
		if err := ctx.Err(); err != nil {
			return written, ConnectionError(err)
		}

		n := framing.NextChunkSize(remaining, chunkSize)
		frame, err := f.ReadChunk(n + codec.Overhead)
		if err != nil {
			return written, readError(err)
		}
		plaintext, err := c.Open(frame)
		if err != nil {
			return written, readError(err)
		}

		if _, err := w.Write(plaintext); err != nil {
			remaining -= int64(len(plaintext))
			if derr := f.DiscardChunks(remaining, chunkSize); derr != nil {
				return written, readError(derr)
			}
			return written, StorageError("failed to store the uploaded file", err)
		}

		written += int64(len(plaintext))
		remaining -= int64(len(plaintext))
	}
	return written, nil
}

// readError classifies a failure to read or open a frame. None of these leave a stream
// that can be resynchronised.
func readError(err error) *Error {
	var pe *Error
	switch {
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, codec.ErrAuthentication), errors.Is(err, codec.ErrTruncatedFrame):
		return AuthenticationError(err)
	default:
		return ConnectionError(err)
	}
}

// drain discards the chunk frames of a payload that will not be stored.
func drain(f *framing.Framer, size int64, chunkSize int) error {
	if err := f.DiscardChunks(size, chunkSize); err != nil {
		return readError(err)
	}
	return nil
}
