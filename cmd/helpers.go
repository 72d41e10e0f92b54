package cmd

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/version"
)

func printVersion(verbose bool) {
	fmt.Println("mediarelay version: ", version.AppVersion, runtime.GOOS+"/"+runtime.GOARCH)
	if verbose {
		fmt.Println("  Commit: ", version.Commit)
		fmt.Println("  Built:  ", version.BuildDate)
		fmt.Println("  Go:     ", runtime.Version())
	}
}

var actionNames = map[string]protocol.Action{
	"compress":     protocol.ActionCompress,
	"resolution":   protocol.ActionResolution,
	"aspect-ratio": protocol.ActionAspectRatio,
	"audio":        protocol.ActionExtractAudio,
	"clip":         protocol.ActionClip,
}

// parseAction accepts an action name or its numeric discriminant.
func parseAction(s string) (protocol.Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if a, ok := actionNames[s]; ok {
		return a, nil
	}
	if n, err := strconv.Atoi(s); err == nil && protocol.Action(n).Valid() {
		return protocol.Action(n), nil
	}
	return 0, fmt.Errorf("unknown action %q, must be one of compress, resolution, aspect-ratio, audio, clip", s)
}
