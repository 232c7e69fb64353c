package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arjsin/simproto/dialog"
	"github.com/arjsin/simproto/hexutil"
)

const (
	// broadcastQueueSize bounds each topic's broadcast input.
	broadcastQueueSize = 16

	// deliveryQueueSize bounds each subscriber's pending-notification
	// queue. A subscriber that falls further behind loses items rather
	// than stalling the topic.
	deliveryQueueSize = 64

	// notifyTimeout bounds a single notification call to a subscriber.
	notifyTimeout = 10 * time.Second
)

// ErrUnknownTopic is returned by Publish when no subscription point exists
// for the topic.
var ErrUnknownTopic = errors.New("sim: unknown topic")

// HandlerFunc serves one topic-addressed request and returns the response
// body.
type HandlerFunc func(ctx context.Context, message []byte) ([]byte, error)

// HandlerOptions contains options for a Handler.
type HandlerOptions struct {
	// Context bounds the lifetime of the per-topic fan-out tasks.
	// Defaults to context.Background().
	Context context.Context

	// Logger receives debug-level fan-out traffic. Defaults to a nop
	// logger.
	Logger *zap.Logger
}

// Handler is the per-endpoint registry: the RPC handler, subscription
// handlers and subscriber set of every topic. It is shared by all
// connections attached to the same endpoint.
//
// Registration is a one-time configuration phase before connections are
// attached; afterwards only the subscriber sets mutate.
type Handler struct {
	ctx    context.Context
	logger *zap.Logger

	mu   sync.RWMutex
	rpc  map[string]HandlerFunc
	subs map[string]*topic
}

// topic is one subscription point: its handlers, the set of subscribed peer
// callers and the broadcast input feeding fan-out.
type topic struct {
	name  string
	sub   HandlerFunc
	unsub HandlerFunc
	input chan []byte

	mu          sync.RWMutex
	subscribers map[dialog.Caller]*subscriberQueue
}

// subscriberQueue carries one subscriber's pending notifications. A single
// delivery goroutine drains it serially, so each subscriber observes items
// in publish order while subscribers never wait on each other.
type subscriberQueue struct {
	ch   chan []byte
	done chan struct{}
}

// NewHandler creates an empty registry.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		ctx:    opts.Context,
		logger: opts.Logger.Named("sim"),
		rpc:    make(map[string]HandlerFunc),
		subs:   make(map[string]*topic),
	}
}

// OnRPC registers the handler serving RPC requests for name. Registration is
// write-once per topic.
func (h *Handler) OnRPC(name []byte, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rpc[string(name)] = fn
}

// OnSubs registers the subscription and unsubscription handlers for name and
// creates the topic's broadcast input. Messages pushed with Publish fan out
// to every subscriber.
func (h *Handler) OnSubs(name []byte, sub, unsub HandlerFunc) {
	t := &topic{
		name:        string(name),
		sub:         sub,
		unsub:       unsub,
		input:       make(chan []byte, broadcastQueueSize),
		subscribers: make(map[dialog.Caller]*subscriberQueue),
	}
	h.mu.Lock()
	h.subs[t.name] = t
	h.mu.Unlock()
	go h.fanOutRoutine(t)
}

// Publish pushes message onto the topic's broadcast input. It suspends while
// the input is full and fails when no subscription point exists for name.
func (h *Handler) Publish(ctx context.Context, name, message []byte) error {
	t := h.getSubs(name)
	if t == nil {
		return ErrUnknownTopic
	}
	select {
	case t.input <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

// fanOutRoutine hands each broadcast item to every current subscriber's
// delivery queue. The hand-off never blocks: a subscriber whose queue is
// full loses the item, so one unresponsive peer cannot stall the topic for
// the others.
func (h *Handler) fanOutRoutine(t *topic) {
	for {
		select {
		case msg := <-t.input:
			payload := appendRequest(nil, Request{
				Kind:    KindNotification,
				Topic:   []byte(t.name),
				Message: msg,
			})

			t.mu.RLock()
			queues := make([]*subscriberQueue, 0, len(t.subscribers))
			for _, q := range t.subscribers {
				queues = append(queues, q)
			}
			t.mu.RUnlock()

			for _, q := range queues {
				select {
				case q.ch <- payload:
				default:
					h.logger.Debug("notification dropped",
						zap.String("topic", hexutil.BytesToHex([]byte(t.name))),
					)
				}
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// deliverRoutine drains one subscriber's queue, issuing the notification
// calls serially so the subscriber observes items in publish order.
func (h *Handler) deliverRoutine(t *topic, c dialog.Caller, q *subscriberQueue) {
	for {
		select {
		case payload := <-q.ch:
			h.notify(c, t.name, payload)
		case <-q.done:
			return
		case <-h.ctx.Done():
			return
		}
	}
}

// notify issues a single notification call. Failures are swallowed: a
// disconnected or stuck subscriber does not affect the broadcast.
func (h *Handler) notify(c dialog.Caller, name string, payload []byte) {
	ctx, cancel := context.WithTimeout(h.ctx, notifyTimeout)
	defer cancel()
	resp, err := c.Call(ctx, payload)
	if err != nil {
		h.logger.Debug("notification call failed",
			zap.String("topic", hexutil.BytesToHex([]byte(name))),
			zap.Error(err),
		)
		return
	}
	if st := projectNotification(decodeResponse(resp)).Status; st != StatusNotified {
		h.logger.Debug("notification not delivered",
			zap.String("topic", hexutil.BytesToHex([]byte(name))),
			zap.Stringer("status", st),
		)
	}
}

func (h *Handler) getRPC(name []byte) HandlerFunc {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rpc[string(name)]
}

func (h *Handler) getSubs(name []byte) *topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subs[string(name)]
}

// dropCaller removes c from every topic's subscriber set. Called when the
// connection owning c terminates.
func (h *Handler) dropCaller(c dialog.Caller) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, t := range h.subs {
		t.remove(c)
	}
}

// addSubscriber inserts c into the subscriber set and starts its delivery
// task. It reports false when c is already subscribed; a caller appears at
// most once per topic.
func (h *Handler) addSubscriber(t *topic, c dialog.Caller) bool {
	t.mu.Lock()
	if _, ok := t.subscribers[c]; ok {
		t.mu.Unlock()
		return false
	}
	q := &subscriberQueue{
		ch:   make(chan []byte, deliveryQueueSize),
		done: make(chan struct{}),
	}
	t.subscribers[c] = q
	t.mu.Unlock()
	go h.deliverRoutine(t, c, q)
	return true
}

func (t *topic) remove(c dialog.Caller) {
	t.mu.Lock()
	q, ok := t.subscribers[c]
	if ok {
		delete(t.subscribers, c)
	}
	t.mu.Unlock()
	if ok {
		close(q.done)
	}
}
