package logs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/pkg/logs"
)

// logAsServer emits the kind of records the server writes, through every logging API
// that ends up in the output.
func logAsServer() {
	log.Print("stdlog Print")
	slog.Error("slog Error")

	logger := klog.FromContext(context.Background()).WithName("server")
	logger.Info("Accepting connections", "address", "127.0.0.1:9001")
	logger.V(logs.Debug).Info("Session established")
	logger.V(logs.Trace).Info("Connection state changed", "to", "processing")
	logger.Error(errors.New("fake-error"), "Connection aborted", "state", "handshaking")
}

// TestLogs checks how the logging flags shape the output. Each case runs the test binary
// again as a child process, because the logging configuration is global.
func TestLogs(t *testing.T) {
	if flags, found := os.LookupEnv("GO_CHILD_FLAG"); found {
		fs := pflag.NewFlagSet("mediarelay", pflag.ContinueOnError)
		fs.SetOutput(io.Discard)
		logs.AddFlags(fs)
		if err := fs.Parse(strings.Fields(flags)); err != nil {
			if errors.Is(err, pflag.ErrHelp) {
				fmt.Fprint(os.Stdout, fs.FlagUsages())
				os.Exit(0)
			}
			klog.ErrorS(err, "Exiting due to error", "exit-code", 1)
			klog.FlushAndExit(time.Second, 1)
		}
		if err := logs.Initialize(); err != nil {
			klog.ErrorS(err, "Exiting due to error", "exit-code", 1)
			klog.FlushAndExit(time.Second, 1)
		}

		logAsServer()
		klog.FlushAndExit(time.Second, 0)
	}

	tests := []struct {
		name         string
		flags        string
		expectError  bool
		expectStdout string
		expectStderr string
	}{
		{
			name:  "help",
			flags: "-h",
			expectStdout: `
  -v, --log-level Level         Log verbosity: 0=Info, 1=Debug, 2=Trace, 3-10 for more detail.
      --logging-format string   Log format, "text" or "json". (default "text")
`,
		},
		{
			name:        "unsupported-format",
			flags:       "--logging-format=xml",
			expectError: true,
			expectStderr: `
E0000 00:00:00.000000   00000 logs_test.go:000] "Exiting due to error" err="invalid logging configuration: format: Invalid value: \"xml\": Unsupported log format" exit-code=1
`,
		},
		{
			name: "defaults",
			expectStdout: `
I0000 00:00:00.000000   00000 logs.go:000] "stdlog Print" source="stdlog"
I0000 00:00:00.000000   00000 logs_test.go:000] "Accepting connections" logger="server" address="127.0.0.1:9001"
`,
			expectStderr: `
E0000 00:00:00.000000   00000 logs_test.go:000] "slog Error"
E0000 00:00:00.000000   00000 logs_test.go:000] "Connection aborted" err="fake-error" logger="server" state="handshaking"
`,
		},
		{
			name:  "log-level-trace",
			flags: "--log-level=2",
			expectStdout: `
I0000 00:00:00.000000   00000 logs.go:000] "stdlog Print" source="stdlog"
I0000 00:00:00.000000   00000 logs_test.go:000] "Accepting connections" logger="server" address="127.0.0.1:9001"
I0000 00:00:00.000000   00000 logs_test.go:000] "Session established" logger="server"
I0000 00:00:00.000000   00000 logs_test.go:000] "Connection state changed" logger="server" to="processing"
`,
			expectStderr: `
E0000 00:00:00.000000   00000 logs_test.go:000] "slog Error"
E0000 00:00:00.000000   00000 logs_test.go:000] "Connection aborted" err="fake-error" logger="server" state="handshaking"
`,
		},
		{
			name:  "json",
			flags: "--logging-format=json",
			expectStdout: `
{"ts":0000000000000.000,"caller":"logs/logs.go:000","msg":"stdlog Print","source":"stdlog","v":0}
{"ts":0000000000000.000,"logger":"server","caller":"logs/logs_test.go:000","msg":"Accepting connections","v":0,"address":"127.0.0.1:9001"}
`,
			expectStderr: `
{"ts":0000000000000.000,"caller":"logs/logs_test.go:000","msg":"slog Error"}
{"ts":0000000000000.000,"logger":"server","caller":"logs/logs_test.go:000","msg":"Connection aborted","state":"handshaking","err":"fake-error"}
`,
		},
		{
			name:  "json-single-stream",
			flags: "--logging-format=json --log-json-split-stream=false",
			expectStderr: `
{"ts":0000000000000.000,"caller":"logs/logs.go:000","msg":"stdlog Print","source":"stdlog","v":0}
{"ts":0000000000000.000,"caller":"logs/logs_test.go:000","msg":"slog Error"}
{"ts":0000000000000.000,"logger":"server","caller":"logs/logs_test.go:000","msg":"Accepting connections","v":0,"address":"127.0.0.1:9001"}
{"ts":0000000000000.000,"logger":"server","caller":"logs/logs_test.go:000","msg":"Connection aborted","state":"handshaking","err":"fake-error"}
`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestLogs$", "-test.v")
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			cmd.Env = append(os.Environ(), "GO_CHILD_FLAG="+test.flags)
			err := cmd.Run()

			// -test.v announces the test on stdout before the child logs anything.
			stdoutStr := strings.TrimPrefix(stdout.String(), "=== RUN   TestLogs\n")
			stderrStr := stderr.String()
			t.Logf("STDOUT\n%s\nSTDERR\n%s", stdoutStr, stderrStr)

			if test.expectError {
				var exitErr *exec.ExitError
				require.ErrorAs(t, err, &exitErr)
				require.Equal(t, 1, exitErr.ExitCode())
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, strings.TrimPrefix(test.expectStdout, "\n"), staticTimestamps(stdoutStr), "stdout")
			assert.Equal(t, strings.TrimPrefix(test.expectStderr, "\n"), staticTimestamps(stderrStr), "stderr")
		})
	}
}

var (
	klogHeader = regexp.MustCompile(`\d{4} \d{2}:\d{2}:\d{2}\.\d{6} +\d+`)
	klogCaller = regexp.MustCompile(` ([^:]+).go:\d+`)
	jsonTS     = regexp.MustCompile(`"ts":\d+\.?\d*`)
	jsonCaller = regexp.MustCompile(`"caller":"([^"]+).go:\d+"`)
)

// staticTimestamps blanks out timestamps, thread IDs and line numbers.
func staticTimestamps(s string) string {
	s = klogHeader.ReplaceAllString(s, "0000 00:00:00.000000   00000")
	s = klogCaller.ReplaceAllString(s, " $1.go:000")
	s = jsonTS.ReplaceAllString(s, `"ts":0000000000000.000`)
	s = jsonCaller.ReplaceAllString(s, `"caller":"$1.go:000"`)
	return s
}

func TestStaticTimestamps(t *testing.T) {
	assert.Equal(t,
		`I0000 00:00:00.000000   00000 conn.go:000] "Sent result" bytes=42`,
		staticTimestamps(`I1018 15:20:42.861239    2386 conn.go:177] "Sent result" bytes=42`),
	)
	assert.Equal(t,
		`{"ts":0000000000000.000,"caller":"server/conn.go:000","msg":"Sent result","v":0}`,
		staticTimestamps(`{"ts":1729270111728,"caller":"server/conn.go:177","msg":"Sent result","v":0}`),
	)
}

func TestLogToSlogWriter(t *testing.T) {
	// ffmpeg writes several lines per write, some of them errors.
	given := []string{
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':\n  Duration: 00:00:10.00\n",
		"[h264 @ 0x5581] Invalid NAL unit size (1234 > 567).\n",
		"[h264 @ 0x5581] error while decoding MB 12 4\n",
		"Conversion failed!\n",
		"\n",
	}
	expect := strings.TrimPrefix(`
level=INFO msg="Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':" source=ffmpeg
level=INFO msg="Duration: 00:00:10.00" source=ffmpeg
level=ERROR msg="[h264 @ 0x5581] Invalid NAL unit size (1234 > 567)." source=ffmpeg
level=ERROR msg="[h264 @ 0x5581] error while decoding MB 12 4" source=ffmpeg
level=ERROR msg="Conversion failed!" source=ffmpeg
`, "\n")

	var got bytes.Buffer
	handler := slog.NewTextHandler(&got, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "time" {
				return slog.Attr{}
			}
			return a
		},
	})
	w := logs.LogToSlogWriter{Slog: slog.New(handler), Source: "ffmpeg"}

	for _, chunk := range given {
		n, err := w.Write([]byte(chunk))
		require.NoError(t, err)
		require.Equal(t, len(chunk), n)
	}
	assert.Equal(t, expect, got.String())
}
