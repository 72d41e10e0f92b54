package protocol_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstack/mediarelay/internal/framing"
	"github.com/jetstack/mediarelay/internal/protocol"
)

func TestSendSuccess(t *testing.T) {
	ctx := testContext(t)
	c := newCodec(t)
	content := randomBytes(t, 4*testChunkSize+1)
	path := filepath.Join(t.TempDir(), "output.mp4")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	var wire bytes.Buffer
	fw := framing.New(&wire, 0)
	n, err := protocol.NewSender(fw, c, testChunkSize).SendSuccess(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), n)

	var out bytes.Buffer
	fr := framing.New(&wire, 0)
	resp, err := protocol.ReadResponse(ctx, fr, c, &out, testChunkSize, 0)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.Equal(t, &protocol.SuccessMetadata{Status: "success", FileExtension: "mp4", FileSize: int64(len(content))}, resp.Success)
	assert.Equal(t, content, out.Bytes())
	assert.Equal(t, fw.BytesWritten(), fr.BytesRead())
}

func TestSendSuccess_NoOutput(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.mp4")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	for name, path := range map[string]string{
		"missing":   filepath.Join(dir, "missing.mp4"),
		"empty":     empty,
		"directory": dir,
	} {
		t.Run(name, func(t *testing.T) {
			var wire bytes.Buffer
			_, err := protocol.NewSender(framing.New(&wire, 0), newCodec(t), testChunkSize).SendSuccess(testContext(t), path)
			require.Error(t, err)

			pe := protocol.AsError(err)
			assert.Equal(t, protocol.KindProcessing, pe.Kind)
			assert.Equal(t, protocol.CodeNoOutput, pe.Code)
			assert.Zero(t, wire.Len(), "nothing may be sent before the output is known to be readable")
		})
	}
}

func TestSendError(t *testing.T) {
	ctx := testContext(t)
	c := newCodec(t)

	var wire bytes.Buffer
	fw := framing.New(&wire, 0)
	perr := protocol.ProcessingError(protocol.ActionResolution, "Invalid frame dimensions 0x0", nil)
	require.NoError(t, protocol.NewSender(fw, c, testChunkSize).SendError(ctx, perr))

	var out bytes.Buffer
	fr := framing.New(&wire, 0)
	resp, err := protocol.ReadResponse(ctx, fr, c, &out, testChunkSize, 0)
	require.NoError(t, err)
	require.Nil(t, resp.Success)
	assert.Equal(t, "1003", resp.Error.ErrorCode)
	assert.Equal(t, "resolution change failed: Invalid frame dimensions 0x0", resp.Error.Description)
	assert.NotEmpty(t, resp.Error.Remedy)
	assert.Zero(t, out.Len())
	assert.Equal(t, fw.BytesWritten(), fr.BytesRead())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, os.ErrClosed }
func (failingWriter) Read([]byte) (int, error)  { return 0, os.ErrClosed }

func TestSendError_TransmissionFailure(t *testing.T) {
	err := protocol.NewSender(framing.New(failingWriter{}, 0), newCodec(t), testChunkSize).
		SendError(testContext(t), protocol.SizeError())
	require.ErrorIs(t, err, os.ErrClosed)
	assert.True(t, protocol.IsKind(err, protocol.KindTransmission))
}

func TestReadResponse_UnknownTag(t *testing.T) {
	c := newCodec(t)
	var wire bytes.Buffer
	fw := framing.New(&wire, 0)
	require.NoError(t, fw.WriteSealed(c, []byte{0x07}))
	require.NoError(t, fw.WriteSealed(c, []byte(`{}`)))

	_, err := protocol.ReadResponse(testContext(t), framing.New(&wire, 0), c, &bytes.Buffer{}, testChunkSize, 0)
	require.ErrorContains(t, err, "unknown response tag 0x07")
}
