package framing

import "github.com/jetstack/mediarelay/internal/codec"

// NextChunkSize is the plaintext size of the next payload chunk when remaining plaintext
// bytes are still outstanding.
func NextChunkSize(remaining int64, chunkSize int) int {
	if remaining < int64(chunkSize) {
		return int(remaining)
	}
	return chunkSize
}

// ExpectedChunkBytes is the number of bytes on the wire taken by the chunk frames carrying
// total plaintext bytes.
func ExpectedChunkBytes(total int64, chunkSize int) int64 {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	frames := (total + int64(chunkSize) - 1) / int64(chunkSize)
	return total + frames*codec.Overhead
}
