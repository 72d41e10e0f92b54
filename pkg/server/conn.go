package server

import (
	"context"
	"errors"
	"net"
	"time"

	"k8s.io/klog/v2"

	"github.com/jetstack/mediarelay/internal/codec"
	"github.com/jetstack/mediarelay/internal/framing"
	"github.com/jetstack/mediarelay/internal/handshake"
	"github.com/jetstack/mediarelay/internal/protocol"
	"github.com/jetstack/mediarelay/pkg/logs"
)

// State is the position of a connection in its lifecycle.
type State int

const (
	StateAccepted State = iota
	StateHandshaking
	StateReceivingRequest
	StateProcessing
	StateResponding
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateHandshaking:
		return "handshaking"
	case StateReceivingRequest:
		return "receiving-request"
	case StateProcessing:
		return "processing"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Processor transforms a stored upload and returns the path of the result. Errors should be
// *protocol.Error values of kind KindProcessing; anything else is reported with the code of
// the requested action.
type Processor interface {
	Process(ctx context.Context, inputPath string, params *protocol.Parameters) (string, error)
}

// Storage holds uploads and processing results for the duration of a connection.
type Storage interface {
	protocol.Storage
	Remove(ctx context.Context, paths ...string) error
}

// conn serves the single request of one client connection.
type conn struct {
	srv    *Server
	nc     net.Conn
	framer *framing.Framer
	codec  *codec.Codec
	log    klog.Logger

	state State
	paths []string
}

func (s *Server) newConn(nc net.Conn, log klog.Logger) *conn {
	return &conn{
		srv:    s,
		nc:     nc,
		framer: framing.New(nc, s.cfg.FrameTimeout),
		log:    log.WithValues("remote", nc.RemoteAddr().String()),
		state:  StateAccepted,
	}
}

func (c *conn) setState(state State) {
	c.log.V(logs.Trace).Info("Connection state changed", "from", c.state, "to", state)
	c.state = state
}

// serve runs the connection to completion and closes it.
func (c *conn) serve(ctx context.Context) {
	ctx = klog.NewContext(ctx, c.log)
	start := time.Now()

	metricActiveConnections.Inc()
	defer func() {
		metricActiveConnections.Dec()
		metricBytesReceived.Add(float64(c.framer.BytesRead()))
		metricBytesSent.Add(float64(c.framer.BytesWritten()))
		metricConnections.WithLabelValues(c.state.String()).Inc()

		if c.codec != nil {
			c.codec.Destroy()
		}
		if err := c.srv.storage.Remove(context.WithoutCancel(ctx), c.paths...); err != nil {
			c.log.Error(err, "Failed to clean up connection files")
		}
		if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.log.V(logs.Debug).Info("Failed to close connection", "err", err)
		}
		c.log.V(logs.Debug).Info("Connection finished",
			"state", c.state,
			"duration", time.Since(start),
			"bytesRead", c.framer.BytesRead(),
			"bytesWritten", c.framer.BytesWritten(),
		)
	}()

	c.setState(StateHandshaking)
	cd, err := handshake.Server(ctx, c.framer, c.srv.keys)
	if err != nil {
		c.abort(err)
		return
	}
	c.codec = cd

	c.setState(StateReceivingRequest)
	req, err := protocol.NewReceiver(c.framer, c.codec, c.srv.storage, c.srv.cfg.StreamRate).Receive(ctx)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.paths = append(c.paths, req.InputPath)
	c.log.Info("Received request",
		"action", req.Parameters.Action.String(),
		"mediaType", req.MediaType,
		"bytes", req.Header.PayloadSize,
	)

	c.setState(StateProcessing)
	processingStart := time.Now()
	output, err := c.srv.processor.Process(ctx, req.InputPath, req.Parameters)
	metricProcessingDuration.WithLabelValues(req.Parameters.Action.String()).Observe(time.Since(processingStart).Seconds())
	if output != "" {
		c.paths = append(c.paths, output)
	}
	if err != nil {
		c.fail(ctx, processingError(req.Parameters.Action, err))
		return
	}

	c.setState(StateResponding)
	size, err := protocol.NewSender(c.framer, c.codec, c.srv.cfg.StreamRate).SendSuccess(ctx, output)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	c.log.Info("Sent result", "bytes", size, "duration", time.Since(start))
	c.setState(StateClosed)
}

// fail answers with an error response when the channel is still usable, and aborts
// otherwise.
func (c *conn) fail(ctx context.Context, err error) {
	pe := protocol.AsError(err)
	if pe.Fatal() {
		c.abort(pe)
		return
	}

	metricErrors.WithLabelValues(pe.Kind.String(), pe.Code).Inc()
	c.log.Info("Request failed", "kind", pe.Kind.String(), "code", pe.Code, "err", pe)

	c.setState(StateResponding)
	if err := protocol.NewSender(c.framer, c.codec, c.srv.cfg.StreamRate).SendError(ctx, pe); err != nil {
		c.abort(err)
		return
	}
	c.setState(StateClosed)
}

func (c *conn) abort(err error) {
	pe := protocol.AsError(err)
	metricErrors.WithLabelValues(pe.Kind.String(), pe.Code).Inc()

	// Peers going away are routine, everything else is worth an error.
	if pe.Kind == protocol.KindConnection || pe.Kind == protocol.KindTransmission {
		c.log.V(logs.Debug).Info("Connection aborted", "state", c.state, "err", pe)
	} else {
		c.log.Error(pe, "Connection aborted", "state", c.state)
	}
	c.setState(StateAborted)
}

// processingError maps whatever a Processor returned onto the error taxonomy.
func processingError(action protocol.Action, err error) *protocol.Error {
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return pe
	}
	return protocol.ProcessingError(action, err.Error(), err)
}
