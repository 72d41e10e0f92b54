package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstack/mediarelay/internal/protocol"
)

func TestHeader_EncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		header protocol.Header
		wire   []byte
	}{
		{
			name:   "small",
			header: protocol.Header{JSONSize: 13, MediaTypeSize: 3, PayloadSize: 10_485_760},
			wire:   []byte{0x00, 0x0d, 0x03, 0x00, 0x00, 0xa0, 0x00, 0x00},
		},
		{
			name:   "maximum",
			header: protocol.Header{JSONSize: protocol.MaxJSONSize, MediaTypeSize: protocol.MaxMediaTypeSize, PayloadSize: protocol.MaxPayloadSize},
			wire:   []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
		{
			name:   "zero",
			header: protocol.Header{},
			wire:   make([]byte, protocol.HeaderSize),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.header.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.wire, b)

			got, err := protocol.DecodeHeader(b)
			require.NoError(t, err)
			assert.Equal(t, tt.header, got)
		})
	}
}

func TestHeader_EncodeRejectsOversizedPayload(t *testing.T) {
	_, err := protocol.Header{PayloadSize: protocol.MaxPayloadSize + 1}.Encode()
	require.ErrorContains(t, err, "does not fit in 40 bits")
}

func TestDecodeHeader_WrongLength(t *testing.T) {
	for _, n := range []int{0, 7, 9} {
		_, err := protocol.DecodeHeader(make([]byte, n))
		require.Error(t, err)
		assert.True(t, protocol.IsKind(err, protocol.KindMalformed))
		assert.True(t, protocol.AsError(err).Fatal())
	}
}

func TestHeader_Validate(t *testing.T) {
	err := protocol.Header{JSONSize: 12, MediaTypeSize: 3}.Validate()
	require.Error(t, err)

	pe := protocol.AsError(err)
	assert.Equal(t, protocol.KindProtocolSize, pe.Kind)
	assert.Equal(t, protocol.CodeInvalidRequest, pe.Code)
	assert.False(t, pe.Fatal())

	require.NoError(t, protocol.Header{PayloadSize: 1}.Validate())
}
