// Package framing turns the TCP byte stream into discrete protocol units.
//
// Standalone units are sent as a 4-byte big-endian length followed by that many bytes.
// The encrypted file payload is sent as a run of unprefixed chunk frames whose sizes are
// implied by the declared payload size and the configured chunk size, see NextChunkSize.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jetstack/mediarelay/internal/codec"
)

// LengthPrefixSize is the size of the big-endian length prefix of a standalone frame.
const LengthPrefixSize = 4

// ErrFrameSize is returned when a length prefix is zero or exceeds the allowed maximum.
var ErrFrameSize = errors.New("invalid frame size")

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Framer reads and writes frames on one connection. It is not safe for concurrent use;
// the protocol is strictly ordered.
type Framer struct {
	rw      io.ReadWriter
	timeout time.Duration

	// readDeadlineSet records that a read deadline may still be armed on rw.
	readDeadlineSet bool

	bytesRead    int64
	bytesWritten int64
}

// New wraps rw. If timeout is non-zero and rw supports read/write deadlines (as net.Conn
// does), each frame must arrive or be written within timeout.
func New(rw io.ReadWriter, timeout time.Duration) *Framer {
	return &Framer{rw: rw, timeout: timeout}
}

// Timeout is the per-frame timeout currently in effect.
func (f *Framer) Timeout() time.Duration { return f.timeout }

// SetTimeout changes the per-frame timeout for the frames that follow. Zero disables it.
func (f *Framer) SetTimeout(timeout time.Duration) { f.timeout = timeout }

// BytesRead is the number of bytes consumed from the underlying reader so far.
func (f *Framer) BytesRead() int64 { return f.bytesRead }

// BytesWritten is the number of bytes written to the underlying writer so far.
func (f *Framer) BytesWritten() int64 { return f.bytesWritten }

// WriteFrame writes len(b) as a 4-byte big-endian integer followed by b.
func (f *Framer) WriteFrame(b []byte) error {
	if len(b) == 0 || uint64(len(b)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d", ErrFrameSize, len(b))
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))

	if err := f.write(prefix[:]); err != nil {
		return err
	}
	return f.write(b)
}

// ReadFrame reads a length prefix, then exactly that many bytes. Lengths of zero or above
// maxSize are rejected without reading further.
func (f *Framer) ReadFrame(maxSize int) ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if err := f.read(prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 || uint64(n) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrFrameSize, n, maxSize)
	}

	b := make([]byte, n)
	if err := f.read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteChunk writes a payload chunk frame without a length prefix.
func (f *Framer) WriteChunk(b []byte) error {
	return f.write(b)
}

// ReadChunk reads exactly n bytes of a payload chunk frame.
func (f *Framer) ReadChunk(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrFrameSize, n)
	}
	b := make([]byte, n)
	if err := f.read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Discard consumes exactly n bytes and throws them away. The timeout covers all n bytes;
// use DiscardChunks to skip a run of chunk frames.
func (f *Framer) Discard(n int64) error {
	if n <= 0 {
		return nil
	}
	if err := f.setReadDeadline(); err != nil {
		return err
	}
	copied, err := io.CopyN(io.Discard, f.rw, n)
	f.bytesRead += copied
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// DiscardChunks consumes the chunk frames carrying total plaintext bytes split into
// chunkSize pieces, one frame at a time so that the timeout applies to each frame.
func (f *Framer) DiscardChunks(total int64, chunkSize int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", ErrFrameSize, chunkSize)
	}
	for remaining := total; remaining > 0; {
		n := NextChunkSize(remaining, chunkSize)
		if err := f.Discard(int64(n + codec.Overhead)); err != nil {
			return err
		}
		remaining -= int64(n)
	}
	return nil
}

// WriteSealed encrypts plaintext with c and writes it as a standalone frame.
func (f *Framer) WriteSealed(c *codec.Codec, plaintext []byte) error {
	frame, err := c.Seal(plaintext)
	if err != nil {
		return err
	}
	return f.WriteFrame(frame)
}

// ReadSealed reads a standalone frame and decrypts it with c. maxPlaintext bounds the
// accepted plaintext size.
func (f *Framer) ReadSealed(c *codec.Codec, maxPlaintext int) ([]byte, error) {
	frame, err := f.ReadFrame(maxPlaintext + codec.Overhead)
	if err != nil {
		return nil, err
	}
	return c.Open(frame)
}

func (f *Framer) read(b []byte) error {
	if err := f.setReadDeadline(); err != nil {
		return err
	}
	n, err := io.ReadFull(f.rw, b)
	f.bytesRead += int64(n)
	return err
}

func (f *Framer) write(b []byte) error {
	if f.timeout > 0 {
		if d, ok := f.rw.(writeDeadliner); ok {
			if err := d.SetWriteDeadline(time.Now().Add(f.timeout)); err != nil {
				return err
			}
		}
	}
	n, err := f.rw.Write(b)
	f.bytesWritten += int64(n)
	return err
}

func (f *Framer) setReadDeadline() error {
	d, ok := f.rw.(readDeadliner)
	if !ok {
		return nil
	}
	if f.timeout <= 0 {
		if !f.readDeadlineSet {
			return nil
		}
		f.readDeadlineSet = false
		return d.SetReadDeadline(time.Time{})
	}
	f.readDeadlineSet = true
	return d.SetReadDeadline(time.Now().Add(f.timeout))
}
