// Package transcode transforms uploaded media with ffmpeg.
package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/logs"
)

// diagnosticSize bounds the ffmpeg output kept for error responses.
const diagnosticSize = 1024

// OutputAllocator hands out paths for transformed files.
type OutputAllocator interface {
	OutputPath(extension string) string
}

// Processor runs ffmpeg.
type Processor struct {
	ffmpegPath string
	outputs    OutputAllocator
}

// NewProcessor returns a processor running the ffmpeg binary at ffmpegPath and writing
// results to paths allocated by outputs.
func NewProcessor(ffmpegPath string, outputs OutputAllocator) *Processor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Processor{ffmpegPath: ffmpegPath, outputs: outputs}
}

// Process transforms the file at inputPath and returns the path of the result. Failures are
// *protocol.Error values of kind KindProcessing carrying the tail of ffmpeg's output, except
// for a cancelled context.
func (p *Processor) Process(ctx context.Context, inputPath string, params *protocol.Parameters) (string, error) {
	log := klog.FromContext(ctx).WithValues("action", params.Action.String())

	job, err := Plan(params)
	if err != nil {
		return "", err
	}
	output := p.outputs.OutputPath(job.Extension)

	var tail tailBuffer
	tail.max = diagnosticSize

	cmd := exec.CommandContext(ctx, p.ffmpegPath, job.Args(inputPath, output)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.MultiWriter(&tail, logs.LogToSlogWriter{Slog: slog.Default(), Source: "ffmpeg"})

	log.V(logs.Debug).Info("Running ffmpeg", "args", cmd.Args)
	start := time.Now()
	err = cmd.Run()
	if err != nil {
		_ = os.Remove(output)
		if ctx.Err() != nil {
			return "", protocol.ConnectionError(ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", protocol.ProcessingError(params.Action, "ffmpeg is not available on the server", err)
		}
		return "", protocol.ProcessingError(params.Action, tail.Diagnostic(), err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(output)
		return "", protocol.NoOutputError(params.Action, err)
	}

	log.V(logs.Debug).Info("ffmpeg finished", "duration", time.Since(start), "output", output, "bytes", info.Size())
	return output, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// Diagnostic returns the last complete lines held by the buffer.
func (t *tailBuffer) Diagnostic() string {
	s := string(t.buf)
	if len(t.buf) == t.max {
		// The first line was probably cut.
		if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
			s = s[i+1:]
		}
	}
	return strings.TrimSpace(s)
}
