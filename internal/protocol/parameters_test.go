package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstack/mediarelay/internal/protocol"
)

func TestDecodeParameters(t *testing.T) {
	start, end := 1.5, 10.0

	tests := []struct {
		name    string
		raw     string
		want    *protocol.Parameters
		wantErr string
	}{
		{
			name: "compress",
			raw:  `{"action":1}`,
			want: &protocol.Parameters{Action: protocol.ActionCompress},
		},
		{
			name: "resolution",
			raw:  `{"action":2,"resolution":"720p"}`,
			want: &protocol.Parameters{Action: protocol.ActionResolution, Resolution: "720p"},
		},
		{
			name: "clip",
			raw:  `{"action":5,"startseconds":1.5,"endseconds":10,"extension":"gif"}`,
			want: &protocol.Parameters{Action: protocol.ActionClip, StartSeconds: &start, EndSeconds: &end, Extension: "gif"},
		},
		{
			name: "unknown fields are ignored",
			raw:  `{"action":4,"bitrate":"128k"}`,
			want: &protocol.Parameters{Action: protocol.ActionExtractAudio},
		},
		{
			name:    "missing action",
			raw:     `{"resolution":"720p"}`,
			wantErr: "missing the action",
		},
		{
			name:    "unknown action",
			raw:     `{"action":6}`,
			wantErr: "unknown action 6",
		},
		{
			name:    "not json",
			raw:     `action=1`,
			wantErr: "not a valid JSON object",
		},
		{
			name:    "empty",
			raw:     ``,
			wantErr: "not a valid JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := protocol.DecodeParameters([]byte(tt.raw))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				assert.True(t, protocol.IsKind(err, protocol.KindProtocolSize))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameters_EncodeDecode(t *testing.T) {
	in := &protocol.Parameters{Action: protocol.ActionAspectRatio, AspectRatio: "16:9"}

	raw, err := in.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":3,"aspect_ratio":"16:9"}`, string(raw))

	out, err := protocol.DecodeParameters(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAction_ErrorCode(t *testing.T) {
	assert.Equal(t, "1002", protocol.ActionCompress.ErrorCode())
	assert.Equal(t, "1003", protocol.ActionResolution.ErrorCode())
	assert.Equal(t, "1004", protocol.ActionAspectRatio.ErrorCode())
	assert.Equal(t, "1005", protocol.ActionExtractAudio.ErrorCode())
	assert.Equal(t, "1006", protocol.ActionClip.ErrorCode())
	assert.Equal(t, "1000", protocol.Action(9).ErrorCode())
}

func TestNormalizeMediaType(t *testing.T) {
	for in, want := range map[string]string{"mp4": "mp4", ".MOV": "mov", " mkv ": "mkv"} {
		got, err := protocol.NormalizeMediaType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", ".", "../etc/passwd", "mp4/x", "a very long extension"} {
		_, err := protocol.NormalizeMediaType(in)
		assert.Error(t, err, in)
	}
}
