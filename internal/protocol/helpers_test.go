package protocol_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/ktesting"
	_ "k8s.io/klog/v2/ktesting/init"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/protocol"
)

const testChunkSize = 1400

func testContext(t *testing.T) context.Context {
	t.Helper()
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	return klog.NewContext(t.Context(), log)
}

func newCodec(t *testing.T) *codec.Codec {
	t.Helper()
	key, err := codec.GenerateKey()
	require.NoError(t, err)
	c, err := codec.New(key)
	require.NoError(t, err)
	return c
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

var errDiskFull = errors.New("no space left on device")

// memStorage keeps uploads in memory. An upload fails once more than failAfter bytes
// have been written to it, unless failAfter is negative.
type memStorage struct {
	failAfter int
	createErr error
	commitErr error
	uploads   []*memUpload
}

func (s *memStorage) Create(_ context.Context, size int64, mediaType string) (protocol.Upload, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	u := &memUpload{failAfter: s.failAfter, commitErr: s.commitErr, path: "/uploads/input." + mediaType}
	s.uploads = append(s.uploads, u)
	return u, nil
}

type memUpload struct {
	buf       bytes.Buffer
	failAfter int
	commitErr error
	path      string
	committed bool
	aborted   bool
}

func (u *memUpload) Write(p []byte) (int, error) {
	if u.failAfter >= 0 && u.buf.Len()+len(p) > u.failAfter {
		return 0, errDiskFull
	}
	return u.buf.Write(p)
}

func (u *memUpload) Path() string { return u.path }

func (u *memUpload) Commit() error {
	if u.commitErr != nil {
		return u.commitErr
	}
	u.committed = true
	return nil
}

func (u *memUpload) Abort() error {
	u.aborted = true
	return nil
}
