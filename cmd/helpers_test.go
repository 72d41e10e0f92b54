package cmd

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstack/mediarelay/internal/protocol"
)

func TestParseAction(t *testing.T) {
	tests := map[string]protocol.Action{
		"compress":      protocol.ActionCompress,
		"Resolution":    protocol.ActionResolution,
		" aspect-ratio": protocol.ActionAspectRatio,
		"audio":         protocol.ActionExtractAudio,
		"5":             protocol.ActionClip,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := parseAction(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	for _, in := range []string{"", "6", "0", "sharpen"} {
		_, err := parseAction(in)
		assert.ErrorContains(t, err, "unknown action", in)
	}
}

func TestSetFlagsFromEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	metrics := fs.String("metrics-address", "", "")
	config := fs.String("config", "", "")
	require.NoError(t, fs.Parse([]string{"--config=from-flag.yaml"}))

	t.Setenv("MEDIARELAY_METRICS_ADDRESS", ":8081")
	t.Setenv("MEDIARELAY_CONFIG", "from-env.yaml")
	setFlagsFromEnv("MEDIARELAY_", fs)

	assert.Equal(t, ":8081", *metrics)
	assert.Equal(t, "from-flag.yaml", *config)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.ServerPort)
	assert.Equal(t, 1400, cfg.StreamRate)

	_, err = loadConfig("testdata/does-not-exist.yaml")
	assert.ErrorContains(t, err, "failed to read config file")
}
