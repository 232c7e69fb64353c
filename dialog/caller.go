package dialog

import (
	"context"
	"errors"

	"go.uber.org/atomic"
)

var (
	// ErrSendFailed is returned when a request cannot be handed to the
	// handler because the connection is shut down.
	ErrSendFailed = errors.New("dialog: send failed")

	// ErrClosed is returned when the transport was torn down before the
	// response arrived.
	ErrClosed = errors.New("dialog: transport closed")
)

// call is handed from a Caller to its Handler: the correlation id, the
// single-shot slot the response is delivered on, and the request payload.
type call struct {
	id   uint64
	slot chan []byte
	req  []byte
}

// Caller issues correlated requests on a dialog connection.
//
// Callers are cheap values: copies share the same id space and handler
// channel and compare equal, so any copy of the same Caller identifies the
// same peer when used as a map key.
type Caller struct {
	callCh     chan<- call
	shutdownCh <-chan struct{}
	nextID     *atomic.Uint64
}

// Call sends request over the connection and blocks until the correlated
// response arrives. The request is handed to the handler before the wait
// begins, so the correlation entry exists before any response for its id can
// be read from the stream.
//
// Call is safe for concurrent use; in-flight requests may complete in any
// order.
func (c Caller) Call(ctx context.Context, request []byte) ([]byte, error) {
	id := c.nextID.Inc()
	slot := make(chan []byte, 1)
	// Shutdown is checked first: select picks at random among ready cases.
	select {
	case <-c.shutdownCh:
		return nil, ErrSendFailed
	default:
	}
	select {
	case c.callCh <- call{id: id, slot: slot, req: request}:
	case <-c.shutdownCh:
		return nil, ErrSendFailed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp, ok := <-slot:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-c.shutdownCh:
		select {
		case resp, ok := <-slot:
			if ok {
				return resp, nil
			}
		default:
		}
		return nil, ErrClosed
	case <-ctx.Done():
		// The correlation entry stays behind; a late response for this
		// id is absorbed by the buffered slot and discarded.
		return nil, ctx.Err()
	}
}
