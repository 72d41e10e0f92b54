// Package client sends media to a mediarelay server and reads back the result.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/framing"
	"github.com/jetstack/mediarelay/internal/handshake"
	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/logs"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultDialTries   = 5
)

// Options configures a Client.
type Options struct {
	// Address of the server, host:port.
	Address string

	// ChunkSize must match the server's stream_rate.
	ChunkSize int

	// FrameTimeout bounds the wait for every frame. Zero disables it.
	FrameTimeout time.Duration

	// ResponseTimeout bounds the wait for the server to finish processing and start its
	// response. Zero waits until the context is done.
	ResponseTimeout time.Duration

	DialTimeout time.Duration

	// DialTries is the number of connection attempts before giving up.
	DialTries uint
}

// Client runs one request per connection against a server.
type Client struct {
	opts Options
}

// New validates opts and fills in the dial defaults.
func New(opts Options) (*Client, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("cannot create client: address cannot be empty")
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("cannot create client: chunk size must be positive, got %d", opts.ChunkSize)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.DialTries == 0 {
		opts.DialTries = defaultDialTries
	}
	return &Client{opts: opts}, nil
}

// Process uploads size bytes read from payload, tagged with mediaType, and asks the server
// to apply params. On success the transformed file is written to w and its metadata is
// returned. A structured error from the server is returned as a *protocol.ErrorBody.
func (c *Client) Process(ctx context.Context, params *protocol.Parameters, mediaType string, payload io.Reader, size int64, w io.Writer) (*protocol.SuccessMetadata, error) {
	log := klog.FromContext(ctx)

	nc, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	// Unblock any frame in progress when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = nc.Close()
	})
	defer stop()

	f := framing.New(nc, c.opts.FrameTimeout)

	cd, err := handshake.Client(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("handshake with %s failed: %w", c.opts.Address, err)
	}
	defer cd.Destroy()
	log.V(logs.Debug).Info("Session established", "address", c.opts.Address)

	start := time.Now()
	if err := protocol.WriteRequest(ctx, f, cd, params, mediaType, payload, size, c.opts.ChunkSize); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	log.V(logs.Debug).Info("Request sent", "bytes", f.BytesWritten(), "duration", time.Since(start))

	resp, err := protocol.ReadResponse(ctx, f, cd, w, c.opts.ChunkSize, c.opts.ResponseTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	log.V(logs.Debug).Info("Response received", "bytes", resp.Success.FileSize, "extension", resp.Success.FileExtension)
	return resp.Success, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	log := klog.FromContext(ctx)
	dialer := net.Dialer{Timeout: c.opts.DialTimeout}

	operation := func() (net.Conn, error) {
		nc, err := dialer.DialContext(ctx, "tcp", c.opts.Address)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return nc, nil
	}

	nc, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.opts.DialTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Info("Failed to connect, retrying", "address", c.opts.Address, "in", d, "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.opts.Address, err)
	}
	return nc, nil
}

// IsServerError reports whether err is a structured error returned by the server, and
// returns it.
func IsServerError(err error) (*protocol.ErrorBody, bool) {
	var body *protocol.ErrorBody
	ok := errors.As(err, &body)
	return body, ok
}
