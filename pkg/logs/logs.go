// Package logs sets up klog, slog and the standard log package so that everything
// mediarelay and its libraries log comes out in one format.
//
// Text output uses the klog format, JSON output the Kubernetes JSON format. Info records
// are written to stdout and errors to stderr so that log collectors can tell them apart.
// Verbosity is numeric; use the Info, Debug and Trace levels below.
package logs

import (
	"bytes"
	"fmt"
	"log"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/component-base/featuregate"
	"k8s.io/component-base/logs"
	logsapi "k8s.io/component-base/logs/api/v1"

	_ "k8s.io/component-base/logs/json/register"
)

const (
	Info  = 0
	Debug = 1
	Trace = 2
)

var (
	config = logsapi.NewLoggingConfiguration()
	gate   = featuregate.NewFeatureGate()

	// Everything else stays usable but is left out of --help.
	shownFlags = sets.New("v", "logging-format")

	splitStreamFlags = sets.New("log-text-split-stream", "log-json-split-stream")
)

func init() {
	runtime.Must(logsapi.AddFeatureGates(gate))
	// Split streams are an alpha logging option.
	runtime.Must(gate.OverrideDefault(logsapi.LoggingAlphaOptions, true))
}

// AddFlags adds --log-level, --logging-format and the hidden logging flags to fs. Split
// streams are on by default.
func AddFlags(fs *pflag.FlagSet) {
	var all pflag.FlagSet
	logsapi.AddFlags(config, &all)
	gate.AddFlag(&all)

	all.VisitAll(func(f *pflag.Flag) {
		if !shownFlags.Has(f.Name) {
			_ = all.MarkHidden(f.Name)
		}
		switch {
		case f.Name == "v":
			f.Name = "log-level"
			f.Shorthand = "v"
			f.Usage = "Log verbosity: 0=Info, 1=Debug, 2=Trace, 3-10 for more detail."
		case f.Name == "logging-format":
			f.Usage = `Log format, "text" or "json".`
		case splitStreamFlags.Has(f.Name):
			f.DefValue = "true"
			runtime.Must(f.Value.Set("true"))
		}
	})
	fs.AddFlagSet(&all)
}

// Initialize applies the logging flags to klog and makes slog and the standard log
// package write through it.
func Initialize() error {
	logs.InitLogs()
	if err := logsapi.ValidateAndApply(config, gate); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}

	// logs.InitLogs already backs slog.Default with klog.
	log.Default().SetOutput(LogToSlogWriter{Slog: slog.Default(), Source: "stdlog"})
	return nil
}

// LogToSlogWriter turns lines written to it into slog records. Lines that
// mention an error or failure are logged at ERROR level, the rest as INFO.
type LogToSlogWriter struct {
	Slog   *slog.Logger
	Source string
}

func (w LogToSlogWriter) Write(p []byte) (n int, err error) {
	logger := w.Slog.With("source", w.Source)
	for _, line := range bytes.Split(p, []byte("\n")) {
		message := strings.TrimSpace(string(line))
		if message == "" {
			continue
		}
		lower := strings.ToLower(message)
		if strings.Contains(lower, "error") ||
			strings.Contains(lower, "failed") ||
			strings.Contains(lower, "invalid") {
			logger.Error(message)
		} else {
			logger.Info(message)
		}
	}
	return len(p), nil
}
