package protocol

import (
	"context"
	"fmt"
	"io"

	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/framing"
	"github.com/jetstack/mediarelay/pkg/logs"
)

// Upload is a file being written by the receiver.
type Upload interface {
	io.Writer

	// Path is where the upload is stored once committed.
	Path() string

	// Commit finalizes a fully written upload.
	Commit() error

	// Abort discards a partial upload and releases its resources.
	Abort() error
}

// Storage creates uploads for incoming payloads.
type Storage interface {
	Create(ctx context.Context, size int64, mediaType string) (Upload, error)
}

// Request is a fully received request.
type Request struct {
	Header        Header
	RawParameters []byte
	Parameters    *Parameters
	MediaType     string

	// InputPath is the stored payload.
	InputPath string
}

// Receiver reads one request from an established session.
type Receiver struct {
	framer    *framing.Framer
	codec     *codec.Codec
	storage   Storage
	chunkSize int
}

// NewReceiver returns a receiver reading from f with the session codec c. chunkSize is the
// plaintext size of each payload chunk.
func NewReceiver(f *framing.Framer, c *codec.Codec, storage Storage, chunkSize int) *Receiver {
	return &Receiver{
		framer:    f,
		codec:     c,
		storage:   storage,
		chunkSize: chunkSize,
	}
}

// Receive reads the header, parameters, media type and payload of a request.
//
// The returned error is always a *Error. When it is not fatal, every byte the client
// declared has been consumed and a structured error response can be sent.
func (r *Receiver) Receive(ctx context.Context) (*Request, error) {
	log := klog.FromContext(ctx)

	raw, err := r.framer.ReadSealed(r.codec, HeaderSize)
	if err != nil {
		return nil, readError(err)
	}
	// Without the sizes the following frames cannot be found, so a bad header is fatal.
	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	log.V(logs.Debug).Info("Received request header",
		"jsonSize", header.JSONSize,
		"mediaTypeSize", header.MediaTypeSize,
		"payloadSize", header.PayloadSize,
	)

	// The parameters and media type frames are always sent, so they are consumed
	// before the header is judged.
	rawParams, err := r.framer.ReadSealed(r.codec, MaxJSONSize)
	if err != nil {
		return nil, readError(err)
	}
	rawMediaType, err := r.framer.ReadSealed(r.codec, MaxMediaTypeSize)
	if err != nil {
		return nil, readError(err)
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}
	size := int64(header.PayloadSize)

	req, perr := r.parse(header, rawParams, rawMediaType)
	if perr != nil {
		if err := drain(r.framer, size, r.chunkSize); err != nil {
			return nil, err
		}
		return nil, perr
	}

	upload, err := r.storage.Create(ctx, size, req.MediaType)
	if err != nil {
		if derr := drain(r.framer, size, r.chunkSize); derr != nil {
			return nil, derr
		}
		if pe := AsError(err); pe.Kind == KindStorage {
			return nil, pe
		}
		return nil, StorageError("failed to reserve storage for the upload", err)
	}

	written, err := ReceivePayload(ctx, r.framer, r.codec, upload, size, r.chunkSize)
	if err != nil {
		if aerr := upload.Abort(); aerr != nil {
			log.Error(aerr, "Failed to discard partial upload", "path", upload.Path())
		}
		return nil, err
	}
	if err := upload.Commit(); err != nil {
		if aerr := upload.Abort(); aerr != nil {
			log.Error(aerr, "Failed to discard uncommitted upload", "path", upload.Path())
		}
		return nil, StorageError("failed to store the uploaded file", err)
	}

	log.V(logs.Debug).Info("Received payload", "bytes", written, "path", upload.Path())
	req.InputPath = upload.Path()
	return req, nil
}

func (r *Receiver) parse(header Header, rawParams, rawMediaType []byte) (*Request, *Error) {
	if len(rawParams) != int(header.JSONSize) {
		return nil, InvalidRequestError(fmt.Sprintf("header declares %d bytes of parameters, got %d", header.JSONSize, len(rawParams)), nil)
	}
	if len(rawMediaType) != int(header.MediaTypeSize) {
		return nil, InvalidRequestError(fmt.Sprintf("header declares a %d byte media type, got %d", header.MediaTypeSize, len(rawMediaType)), nil)
	}

	params, err := DecodeParameters(rawParams)
	if err != nil {
		return nil, AsError(err)
	}
	mediaType, err := NormalizeMediaType(string(rawMediaType))
	if err != nil {
		return nil, AsError(err)
	}

	return &Request{
		Header:        header,
		RawParameters: rawParams,
		Parameters:    params,
		MediaType:     mediaType,
	}, nil
}
