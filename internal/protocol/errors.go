package protocol

import (
	stderrors "errors"
	"fmt"
)

// ErrKind categorizes protocol errors so the connection lifecycle can decide whether a
// structured error response can be sent or the connection must simply be torn down.
type ErrKind uint8

const (
	// KindHandshake: malformed or unsupported key material. No session key exists yet.
	KindHandshake ErrKind = iota + 1
	// KindProtocolSize: zero payload, malformed parameters or media type.
	KindProtocolSize
	// KindAuthentication: a frame failed AEAD authentication or was truncated.
	KindAuthentication
	// KindConnection: the peer went away or a frame did not arrive in time.
	KindConnection
	// KindStorage: the payload could not be stored locally.
	KindStorage
	// KindProcessing: the transformation failed or produced no output.
	KindProcessing
	// KindTransmission: the response could not be sent.
	KindTransmission
	// KindMalformed: the request framing cannot be followed, so the remaining frames
	// cannot be found.
	KindMalformed
)

func (k ErrKind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindProtocolSize:
		return "protocol-size"
	case KindAuthentication:
		return "authentication"
	case KindConnection:
		return "connection"
	case KindStorage:
		return "storage"
	case KindProcessing:
		return "processing"
	case KindTransmission:
		return "transmission"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Error codes reported to clients in the error response.
const (
	CodeInvalidRequest = "1000"
	CodeUpload         = "1001"
	CodeCompress       = "1002"
	CodeResolution     = "1003"
	CodeAspectRatio    = "1004"
	CodeExtractAudio   = "1005"
	CodeClip           = "1006"
	CodeNoOutput       = "1099"
)

const defaultProcessingRemedy = "Check that the input is a valid video file and the parameters are supported, then retry."

// Error is the error type returned by every step of the protocol.
type Error struct {
	Kind        ErrKind
	Code        string
	Description string
	Remedy      string
	Err         error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String() + " error"
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the connection must be torn down without a response, either
// because no trustworthy channel exists or because the channel itself failed.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindHandshake, KindAuthentication, KindConnection, KindTransmission, KindMalformed:
		return true
	default:
		return false
	}
}

// Body returns the structured error sent to the client.
func (e *Error) Body() ErrorBody {
	return ErrorBody{
		ErrorCode:   e.Code,
		Description: e.Description,
		Remedy:      e.Remedy,
	}
}

// IsKind reports whether err is, or wraps, a *Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// AsError returns err as a *Error, wrapping unknown errors as connection errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe
	}
	return ConnectionError(err)
}

// HandshakeError reports a failed key exchange.
func HandshakeError(description string, err error) *Error {
	return &Error{Kind: KindHandshake, Description: description, Err: err}
}

// AuthenticationError reports a frame that failed to decrypt.
func AuthenticationError(err error) *Error {
	return &Error{Kind: KindAuthentication, Description: "frame rejected", Err: err}
}

// ConnectionError reports a peer that went away or stopped sending.
func ConnectionError(err error) *Error {
	return &Error{Kind: KindConnection, Description: "connection failed", Err: err}
}

// TransmissionError reports a response that could not be written.
func TransmissionError(err error) *Error {
	return &Error{Kind: KindTransmission, Description: "failed to send response", Err: err}
}

// InvalidRequestError reports a request the server could parse frame by frame but whose
// content is unusable.
func InvalidRequestError(description string, err error) *Error {
	return &Error{
		Kind:        KindProtocolSize,
		Code:        CodeInvalidRequest,
		Description: description,
		Remedy:      "Check the request header, parameters and media type, then retry.",
		Err:         err,
	}
}

// MalformedError reports a request whose frames cannot be delimited, such as a header of
// the wrong size.
func MalformedError(description string) *Error {
	return &Error{Kind: KindMalformed, Description: description}
}

// SizeError reports a declared payload size of zero.
func SizeError() *Error {
	return &Error{
		Kind:        KindProtocolSize,
		Code:        CodeInvalidRequest,
		Description: "declared payload size is zero",
		Remedy:      "Select a non-empty file and retry.",
	}
}

// StorageError reports an upload that could not be stored.
func StorageError(description string, err error) *Error {
	return &Error{
		Kind:        KindStorage,
		Code:        CodeUpload,
		Description: description,
		Remedy:      "The server could not store the upload. Retry later or send a smaller file.",
		Err:         err,
	}
}

// ProcessingError reports a failed transformation. diagnostic is the tool's own output
// and is passed to the client verbatim.
func ProcessingError(action Action, diagnostic string, err error) *Error {
	description := fmt.Sprintf("%s failed", action)
	if diagnostic != "" {
		description += ": " + diagnostic
	}
	return &Error{
		Kind:        KindProcessing,
		Code:        action.ErrorCode(),
		Description: description,
		Remedy:      defaultProcessingRemedy,
		Err:         err,
	}
}

// NoOutputError reports a transformation that claimed success without producing a file.
func NoOutputError(action Action, err error) *Error {
	return &Error{
		Kind:        KindProcessing,
		Code:        CodeNoOutput,
		Description: fmt.Sprintf("%s produced no output", action),
		Remedy:      defaultProcessingRemedy,
		Err:         err,
	}
}
