// Package dialog implements a bidirectional, correlated request/response
// multiplexer over a single duplex byte stream. Both peers may issue requests
// and serve the other side's requests at the same time; responses are routed
// back to their callers by a per-connection correlation table.
package dialog

import (
	"context"
	"io"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Options contains options for a dialog connection.
type Options struct {
	// Context used to tear the connection down. Defaults to
	// context.Background().
	Context context.Context

	// Logger receives debug-level frame traffic. Defaults to a nop logger.
	Logger *zap.Logger

	// PingInterval makes the handler originate ping frames on the given
	// period. Zero disables origination; inbound pings are always
	// answered.
	PingInterval time.Duration

	// ErrorCh is an optional channel used to report fatal connection
	// errors.
	ErrorCh chan error
}

// New wires a dialog over conn. The returned Caller issues correlated
// requests; the Handler serves the connection once Run is called. Inbound
// requests are passed to serve.
//
// No goroutine runs and no frame is read before Run, so state the serve
// function depends on may still be wired up between New and Run.
func New(conn io.ReadWriteCloser, serve HandlerFunc, opts Options) (Caller, *Handler) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Handler{
		conn:         conn,
		serve:        serve,
		logger:       opts.Logger.Named("dialog"),
		errCh:        opts.ErrorCh,
		pingInterval: opts.PingInterval,
		ctx:          opts.Context,
		callCh:       make(chan call, callQueueSize),
		writeCh:      make(chan Frame, writeQueueSize),
		nextID:       atomic.NewUint64(0),
		calls:        make(map[uint64]chan []byte),
		shutdown:     atomic.NewBool(false),
		shutdownCh:   make(chan struct{}),
	}
	c := Caller{
		callCh:     h.callCh,
		shutdownCh: h.shutdownCh,
		nextID:     h.nextID,
	}
	return c, h
}
