package protocol

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/framing"
	"github.com/jetstack/mediarelay/pkg/logs"
)

// Sender writes the single response of a request.
type Sender struct {
	framer    *framing.Framer
	codec     *codec.Codec
	chunkSize int
}

// NewSender returns a sender writing to f with the session codec c.
func NewSender(f *framing.Framer, c *codec.Codec, chunkSize int) *Sender {
	return &Sender{
		framer:    f,
		codec:     c,
		chunkSize: chunkSize,
	}
}

// SendSuccess streams the file at path as a success response and returns its size.
//
// The file is opened before anything is written. If it is missing, empty or unreadable a
// processing error is returned, nothing has been sent, and the caller can still answer
// with SendError. Any other error means the response is incomplete and the connection
// must be closed.
func (s *Sender) SendSuccess(ctx context.Context, path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, outputError(err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, outputError(err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return 0, outputError(nil)
	}

	metadata, err := json.Marshal(SuccessMetadata{
		Status:        statusSuccess,
		FileExtension: strings.TrimPrefix(filepath.Ext(path), "."),
		FileSize:      info.Size(),
	})
	if err != nil {
		return 0, outputError(err)
	}

	if err := s.framer.WriteSealed(s.codec, []byte{TagSuccess}); err != nil {
		return 0, TransmissionError(err)
	}
	if err := s.framer.WriteSealed(s.codec, metadata); err != nil {
		return 0, TransmissionError(err)
	}
	if err := SendPayload(ctx, s.framer, s.codec, file, info.Size(), s.chunkSize); err != nil {
		if pe := AsError(err); pe.Kind == KindConnection {
			return 0, pe
		}
		return 0, TransmissionError(err)
	}

	klog.FromContext(ctx).V(logs.Debug).Info("Sent success response", "bytes", info.Size(), "path", path)
	return info.Size(), nil
}

// SendError sends e as an error response.
func (s *Sender) SendError(ctx context.Context, e *Error) error {
	body, err := json.Marshal(e.Body())
	if err != nil {
		return TransmissionError(err)
	}

	if err := s.framer.WriteSealed(s.codec, []byte{TagError}); err != nil {
		return TransmissionError(err)
	}
	if err := s.framer.WriteSealed(s.codec, body); err != nil {
		return TransmissionError(err)
	}

	klog.FromContext(ctx).V(logs.Debug).Info("Sent error response", "code", e.Code)
	return nil
}

func outputError(err error) *Error {
	return &Error{
		Kind:        KindProcessing,
		Code:        CodeNoOutput,
		Description: "the transformation produced no readable output",
		Remedy:      defaultProcessingRemedy,
		Err:         err,
	}
}
