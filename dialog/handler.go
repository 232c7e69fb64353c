package dialog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	// writeBufSize is the size of the buffered writer in front of the
	// stream. When the buffered data reaches this threshold the writer
	// flushes before accepting more frames, pausing all producers of the
	// connection until the stream drains.
	writeBufSize = 8 * 1024

	// callQueueSize bounds the caller-to-handler channel.
	callQueueSize = 16

	// writeQueueSize bounds the internal outbound frame channel.
	writeQueueSize = 16

	// readBufSize is the size of the chunks read from the stream.
	readBufSize = 4 * 1024
)

// HandlerFunc serves a single inbound request and returns the response
// payload. A non-nil error is fatal for the connection.
type HandlerFunc func(ctx context.Context, request []byte) ([]byte, error)

// Handler owns one byte stream and runs the per-connection state machine: it
// frames outbound requests from its Callers, routes inbound responses through
// the correlation table, reflects pings, and dispatches inbound requests to
// the user handler.
type Handler struct {
	conn         io.ReadWriteCloser
	serve        HandlerFunc
	logger       *zap.Logger
	errCh        chan error
	pingInterval time.Duration

	ctx     context.Context
	callCh  chan call
	writeCh chan Frame
	nextID  *atomic.Uint64

	// Correlation table. An entry is inserted when a caller's request is
	// accepted for writing and removed when the matching response arrives
	// or the connection terminates.
	mu    sync.Mutex
	calls map[uint64]chan []byte

	shutdown    *atomic.Bool
	shutdownCh  chan struct{}
	shutdownErr error
}

// Run serves the connection until the stream hits EOF, an I/O error occurs or
// the context is canceled. It returns nil on a clean shutdown and the first
// fatal error otherwise. Every pending caller is woken with ErrClosed when
// Run returns.
func (h *Handler) Run() error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writerRoutine()
	}()
	go h.contextRoutine()
	if h.pingInterval > 0 {
		go h.pingRoutine()
	}

	h.readerLoop()
	wg.Wait()
	<-h.shutdownCh

	err := h.shutdownErr
	if err != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close tears the connection down, waking every pending caller.
func (h *Handler) Close() error {
	h.closeStream(nil)
	return nil
}

// readerLoop reads stream bytes into the frame decoder and dispatches each
// decoded frame. It returns once the stream is closed or fails.
func (h *Handler) readerLoop() {
	var dec Decoder
	buf := make([]byte, readBufSize)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			for {
				f, ok := dec.Decode()
				if !ok {
					break
				}
				h.logger.Debug("frame received",
					zap.Stringer("type", f.Type),
					zap.Uint64("id", f.ID),
					zap.Int("len", len(f.Payload)),
				)
				h.dispatch(f)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || h.shutdown.Load() {
				h.closeStream(nil)
			} else {
				h.closeStream(fmt.Errorf("dialog: read: %w", err))
			}
			return
		}
	}
}

// dispatch applies the protocol action table to one inbound frame.
func (h *Handler) dispatch(f Frame) {
	switch f.Type {
	case TypeRequest:
		// Requests are served in their own goroutine so a slow handler
		// does not block the stream.
		go h.serveRequest(f.ID, f.Payload)
	case TypeResponse:
		h.mu.Lock()
		slot, ok := h.calls[f.ID]
		if ok {
			delete(h.calls, f.ID)
		}
		h.mu.Unlock()
		if ok {
			slot <- f.Payload
		}
		// A response with no correlation entry belongs to an abandoned
		// call and is silently discarded.
	case TypePing:
		h.send(Frame{Type: TypePong, ID: f.ID, Payload: f.Payload})
	case TypePong:
	}
}

func (h *Handler) serveRequest(id uint64, payload []byte) {
	resp, err := h.serve(h.ctx, payload)
	if err != nil {
		h.closeStream(fmt.Errorf("dialog: handler: %w", err))
		return
	}
	h.send(Frame{Type: TypeResponse, ID: id, Payload: resp})
}

// send queues an outbound frame, suspending while the outbound queue is full.
func (h *Handler) send(f Frame) {
	select {
	case h.writeCh <- f:
	case <-h.shutdownCh:
	}
}

// writerRoutine serializes outbound frames onto the stream in FIFO order of
// production. Caller requests are recorded in the correlation table before
// their frame is written, so a response can never outrun its slot. The write
// buffer is flushed whenever the outbound queues go momentarily idle.
func (h *Handler) writerRoutine() {
	w := bufio.NewWriterSize(h.conn, writeBufSize)
	var scratch []byte
	for {
		select {
		case c := <-h.callCh:
			if !h.writeCall(w, &scratch, c) {
				return
			}
		case f := <-h.writeCh:
			if !h.writeFrame(w, &scratch, f) {
				return
			}
		case <-h.shutdownCh:
			return
		}

		// Drain whatever is already queued before flushing.
		for drained := false; !drained; {
			select {
			case c := <-h.callCh:
				if !h.writeCall(w, &scratch, c) {
					return
				}
			case f := <-h.writeCh:
				if !h.writeFrame(w, &scratch, f) {
					return
				}
			default:
				drained = true
			}
		}
		if err := w.Flush(); err != nil {
			h.closeStream(fmt.Errorf("dialog: flush: %w", err))
			return
		}
	}
}

func (h *Handler) writeCall(w *bufio.Writer, scratch *[]byte, c call) bool {
	if !h.addCall(c.id, c.slot) {
		return false
	}
	return h.writeFrame(w, scratch, Frame{Type: TypeRequest, ID: c.id, Payload: c.req})
}

func (h *Handler) writeFrame(w *bufio.Writer, scratch *[]byte, f Frame) bool {
	*scratch = AppendFrame((*scratch)[:0], f)
	if _, err := w.Write(*scratch); err != nil {
		h.closeStream(fmt.Errorf("dialog: write: %w", err))
		return false
	}
	h.logger.Debug("frame sent",
		zap.Stringer("type", f.Type),
		zap.Uint64("id", f.ID),
		zap.Int("len", len(f.Payload)),
	)
	return true
}

// addCall inserts a correlation entry. It reports false when the connection
// is already torn down, in which case the slot is closed to wake the caller.
func (h *Handler) addCall(id uint64, slot chan []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		close(slot)
		return false
	}
	h.calls[id] = slot
	return true
}

// contextRoutine tears the connection down when the context is canceled.
func (h *Handler) contextRoutine() {
	select {
	case <-h.ctx.Done():
		h.closeStream(h.ctx.Err())
	case <-h.shutdownCh:
	}
}

// pingRoutine originates health probes on the configured period. Ids are
// drawn from the connection's shared id space; the reflected pongs are
// dropped by the dispatch table.
func (h *Handler) pingRoutine() {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.send(Frame{Type: TypePing, ID: h.nextID.Inc()})
		case <-h.shutdownCh:
			return
		}
	}
}

// closeStream records the first fatal error, closes the stream and drops
// every correlation entry, waking all outstanding callers with ErrClosed.
// Subsequent calls are no-ops.
func (h *Handler) closeStream(err error) {
	if !h.shutdown.CompareAndSwap(false, true) {
		return
	}
	h.shutdownErr = err
	close(h.shutdownCh)
	_ = h.conn.Close()

	h.mu.Lock()
	for id, slot := range h.calls {
		close(slot)
		delete(h.calls, id)
	}
	h.calls = nil
	h.mu.Unlock()

	if err != nil && h.errCh != nil {
		select {
		case h.errCh <- err:
		default:
		}
	}
}
