// Package sim implements a topic-addressed RPC-and-pub/sub protocol layered
// over the dialog transport. Each endpoint dispatches inbound requests to
// per-topic handlers and fans notifications out to all subscribed peers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arjsin/simproto/dialog"
	"github.com/arjsin/simproto/hexutil"
)

// ErrShutdown is returned by Attach after the endpoint's context is done.
var ErrShutdown = errors.New("sim: endpoint shut down")

// Options contains options for a Sim endpoint.
type Options struct {
	// Context bounds the lifetime of every attached connection. Defaults
	// to context.Background().
	Context context.Context

	// Logger receives debug-level connection traffic. Defaults to a nop
	// logger.
	Logger *zap.Logger
}

// Sim wires a Handler registry to dialog connections. Every byte stream
// attached to the endpoint gets its own dialog whose inbound requests are
// decoded as sub-protocol envelopes and dispatched to the registry by topic.
type Sim struct {
	handler *Handler
	ctx     context.Context
	logger  *zap.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*dialog.Handler
}

// New creates an endpoint serving the given registry.
func New(h *Handler, opts Options) *Sim {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sim{
		handler: h,
		ctx:     opts.Context,
		logger:  opts.Logger.Named("sim"),
		conns:   make(map[uuid.UUID]*dialog.Handler),
	}
}

// Attach runs the sub-protocol over conn and returns the topic-level client
// for the peer. The connection is served until the stream fails, reaches EOF
// or the endpoint's context is canceled; when it terminates, the peer's
// caller is removed from every topic's subscriber set.
func (s *Sim) Attach(conn io.ReadWriteCloser) (*Requestor, error) {
	if s.ctx.Err() != nil {
		return nil, ErrShutdown
	}
	id := uuid.New()
	d := &dispatcher{
		handler: s.handler,
		table:   newSubTable(),
		logger:  s.logger.With(zap.String("conn", id.String())),
	}
	caller, dh := dialog.New(conn, d.dispatch, dialog.Options{
		Context: s.ctx,
		Logger:  d.logger,
	})
	// The dialog reads nothing before Run, so the dispatcher observes the
	// peer's caller on the very first inbound frame.
	d.caller = caller

	s.mu.Lock()
	s.conns[id] = dh
	s.mu.Unlock()

	go func() {
		err := dh.Run()
		s.handler.dropCaller(caller)
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		if err != nil {
			d.logger.Debug("connection closed", zap.Error(err))
		} else {
			d.logger.Debug("connection closed")
		}
	}()

	return &Requestor{caller: caller, table: d.table}, nil
}

// Close tears down every attached connection.
func (s *Sim) Close() error {
	s.mu.Lock()
	conns := make([]*dialog.Handler, 0, len(s.conns))
	for _, dh := range s.conns {
		conns = append(conns, dh)
	}
	s.mu.Unlock()
	for _, dh := range conns {
		_ = dh.Close()
	}
	return nil
}

// dispatcher decodes each inbound dialog payload as a sub-protocol request
// and dispatches it by kind. One dispatcher serves one connection.
type dispatcher struct {
	handler *Handler
	caller  dialog.Caller
	table   *subTable
	logger  *zap.Logger
}

func (d *dispatcher) dispatch(ctx context.Context, payload []byte) ([]byte, error) {
	req, ok := decodeRequest(payload)
	if !ok {
		return appendResponse(nil, response{Status: StatusInvalidRequest}), nil
	}
	var resp response
	var err error
	switch req.Kind {
	case KindRPC:
		resp, err = d.rpc(ctx, req)
	case KindSubscription:
		resp = d.subscribe(ctx, req)
	case KindUnsubscription:
		resp, err = d.unsubscribe(ctx, req)
	case KindNotification:
		resp = d.notification(ctx, req)
	}
	if err != nil {
		// RPC and unsubscription handler failures have no place in their
		// response taxonomies; they are fatal for the connection.
		return nil, err
	}
	d.logger.Debug("request served",
		zap.String("topic", hexutil.BytesToHex(req.Topic)),
		zap.Stringer("status", resp.Status),
	)
	return appendResponse(nil, resp), nil
}

func (d *dispatcher) rpc(ctx context.Context, req Request) (response, error) {
	fn := d.handler.getRPC(req.Topic)
	if fn == nil {
		return response{Status: StatusTopicNotFound}, nil
	}
	body, err := fn(ctx, req.Message)
	if err != nil {
		return response{}, fmt.Errorf("sim: rpc handler: %w", err)
	}
	return response{Status: StatusAccepted, Body: body}, nil
}

func (d *dispatcher) subscribe(ctx context.Context, req Request) response {
	t := d.handler.getSubs(req.Topic)
	if t == nil {
		return response{Status: StatusTopicNotFound}
	}
	body, err := t.sub(ctx, req.Message)
	if err != nil {
		return response{Status: StatusRejected, Body: []byte(err.Error())}
	}
	if !d.handler.addSubscriber(t, d.caller) {
		return response{Status: StatusAlreadySubscribed}
	}
	return response{Status: StatusAccepted, Body: body}
}

func (d *dispatcher) unsubscribe(ctx context.Context, req Request) (response, error) {
	t := d.handler.getSubs(req.Topic)
	if t == nil {
		return response{Status: StatusTopicNotFound}, nil
	}
	body, err := t.unsub(ctx, req.Message)
	if err != nil {
		return response{}, fmt.Errorf("sim: unsubscription handler: %w", err)
	}
	t.remove(d.caller)
	return response{Status: StatusAccepted, Body: body}, nil
}

// notification routes an inbound notification to the connection's receiving
// subscription, if any. A receiver that was dropped is forgotten and the
// publisher told NotSubscribed.
func (d *dispatcher) notification(ctx context.Context, req Request) response {
	name := string(req.Topic)
	sub := d.table.get(name)
	if sub == nil {
		return response{Status: StatusTopicNotFound}
	}
	// A dropped receiver takes precedence over free buffer room.
	select {
	case <-sub.done:
		d.table.del(name)
		return response{Status: StatusNotSubscribed}
	default:
	}
	select {
	case sub.ch <- req.Message:
		return response{Status: StatusNotified}
	case <-sub.done:
		d.table.del(name)
		return response{Status: StatusNotSubscribed}
	case <-ctx.Done():
		return response{Status: StatusNotSubscribed}
	}
}
