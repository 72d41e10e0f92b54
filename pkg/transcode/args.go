package transcode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jetstack/mediarelay/internal/protocol"
)

// Resolution is a named output frame size.
type Resolution struct {
	Width, Height int
}

// Resolutions are the frame sizes accepted by the resolution action.
var Resolutions = map[string]Resolution{
	"480p":  {854, 480},
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"4K":    {3840, 2160},
}

// ClipFormats are the output formats accepted by the clip action. The first is the default.
var ClipFormats = []string{"gif", "webm"}

var aspectRatioRegexp = regexp.MustCompile(`^([1-9][0-9]{0,4}):([1-9][0-9]{0,4})$`)

// Job is a validated ffmpeg invocation.
type Job struct {
	// Extension of the output file.
	Extension string

	args func(input, output string) []string
}

// Args returns the ffmpeg arguments turning input into output.
func (j *Job) Args(input, output string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
	return append(args, j.args(input, output)...)
}

// Plan validates params and returns the ffmpeg job performing the requested action.
// Validation failures are processing errors carrying the action's error code.
func Plan(params *protocol.Parameters) (*Job, error) {
	switch params.Action {
	case protocol.ActionCompress:
		return &Job{Extension: "mp4", args: func(in, out string) []string {
			return []string{"-i", in, "-c:v", "libx264", "-crf", "28", "-preset", "medium", "-c:a", "aac", "-b:a", "128k", out}
		}}, nil

	case protocol.ActionResolution:
		res, ok := Resolutions[params.Resolution]
		if !ok {
			return nil, invalid(params.Action, "unsupported resolution %q, expected one of 480p, 720p, 1080p, 1440p, 4K", params.Resolution)
		}
		scale := fmt.Sprintf("scale=%d:%d", res.Width, res.Height)
		return &Job{Extension: "mp4", args: func(in, out string) []string {
			return []string{"-i", in, "-vf", scale, "-c:v", "libx264", "-c:a", "copy", out}
		}}, nil

	case protocol.ActionAspectRatio:
		m := aspectRatioRegexp.FindStringSubmatch(params.AspectRatio)
		if m == nil {
			return nil, invalid(params.Action, "invalid aspect ratio %q, expected W:H such as 16:9", params.AspectRatio)
		}
		dar := fmt.Sprintf("setdar=%s/%s", m[1], m[2])
		return &Job{Extension: "mp4", args: func(in, out string) []string {
			return []string{"-i", in, "-vf", dar, "-c:v", "libx264", "-c:a", "copy", out}
		}}, nil

	case protocol.ActionExtractAudio:
		return &Job{Extension: "mp3", args: func(in, out string) []string {
			return []string{"-i", in, "-vn", "-c:a", "libmp3lame", "-q:a", "2", out}
		}}, nil

	case protocol.ActionClip:
		return planClip(params)

	default:
		return nil, protocol.InvalidRequestError(fmt.Sprintf("unknown action %d", int(params.Action)), nil)
	}
}

func planClip(params *protocol.Parameters) (*Job, error) {
	if params.StartSeconds == nil || params.EndSeconds == nil {
		return nil, invalid(params.Action, "clip requires startseconds and endseconds")
	}
	start, end := *params.StartSeconds, *params.EndSeconds
	if start < 0 || end <= start {
		return nil, invalid(params.Action, "invalid clip range %gs to %gs", start, end)
	}

	format := strings.ToLower(params.Extension)
	if format == "" {
		format = ClipFormats[0]
	}

	ss := strconv.FormatFloat(start, 'f', -1, 64)
	to := strconv.FormatFloat(end, 'f', -1, 64)

	switch format {
	case "gif":
		return &Job{Extension: "gif", args: func(in, out string) []string {
			return []string{"-ss", ss, "-to", to, "-i", in, "-vf", "fps=10,scale=480:-1:flags=lanczos", "-loop", "0", out}
		}}, nil
	case "webm":
		return &Job{Extension: "webm", args: func(in, out string) []string {
			return []string{"-ss", ss, "-to", to, "-i", in, "-c:v", "libvpx-vp9", "-b:v", "1M", "-an", out}
		}}, nil
	default:
		return nil, invalid(params.Action, "unsupported clip format %q, expected gif or webm", params.Extension)
	}
}

func invalid(action protocol.Action, format string, args ...any) error {
	return protocol.ProcessingError(action, fmt.Sprintf(format, args...), nil)
}
