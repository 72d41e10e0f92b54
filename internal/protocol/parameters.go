package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Action selects the transformation performed on the uploaded file.
type Action int

const (
	ActionCompress Action = iota + 1
	ActionResolution
	ActionAspectRatio
	ActionExtractAudio
	ActionClip
)

func (a Action) String() string {
	switch a {
	case ActionCompress:
		return "compression"
	case ActionResolution:
		return "resolution change"
	case ActionAspectRatio:
		return "aspect ratio change"
	case ActionExtractAudio:
		return "audio extraction"
	case ActionClip:
		return "clip"
	default:
		return fmt.Sprintf("action %d", int(a))
	}
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a >= ActionCompress && a <= ActionClip
}

// ErrorCode is the error code reported when the action's transformation fails.
func (a Action) ErrorCode() string {
	switch a {
	case ActionCompress:
		return CodeCompress
	case ActionResolution:
		return CodeResolution
	case ActionAspectRatio:
		return CodeAspectRatio
	case ActionExtractAudio:
		return CodeExtractAudio
	case ActionClip:
		return CodeClip
	default:
		return CodeInvalidRequest
	}
}

// Parameters is the decoded parameters blob. Apart from Action, the fields are only
// interpreted by the processing collaborator.
type Parameters struct {
	Action       Action   `json:"action"`
	Resolution   string   `json:"resolution,omitempty"`
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	StartSeconds *float64 `json:"startseconds,omitempty"`
	EndSeconds   *float64 `json:"endseconds,omitempty"`
	Extension    string   `json:"extension,omitempty"`
}

// Encode marshals the parameters to the JSON sent on the wire.
func (p *Parameters) Encode() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(b) > MaxJSONSize {
		return nil, fmt.Errorf("parameters are %d bytes, larger than %d", len(b), MaxJSONSize)
	}
	return b, nil
}

// DecodeParameters parses the parameters blob and checks the action discriminant.
func DecodeParameters(raw []byte) (*Parameters, error) {
	var p Parameters

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&p); err != nil {
		return nil, InvalidRequestError("parameters are not a valid JSON object", err)
	}

	if p.Action == 0 {
		return nil, InvalidRequestError("parameters are missing the action", nil)
	}
	if !p.Action.Valid() {
		return nil, InvalidRequestError(fmt.Sprintf("unknown action %d", int(p.Action)), nil)
	}

	return &p, nil
}

var mediaTypeRegexp = regexp.MustCompile(`^[a-z0-9]{1,16}$`)

// NormalizeMediaType lowercases a file extension tag and strips a leading dot. Tags that
// could not safely be used as a file extension are rejected.
func NormalizeMediaType(tag string) (string, error) {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "."))
	if !mediaTypeRegexp.MatchString(tag) {
		return "", InvalidRequestError(fmt.Sprintf("unsupported media type %q", tag), nil)
	}
	return tag, nil
}
