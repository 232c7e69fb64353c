package sim

import (
	"context"
	"sync"

	"github.com/arjsin/simproto/dialog"
)

// subscriptionQueueSize bounds each subscription's receive channel.
const subscriptionQueueSize = 16

// Subscription is the receiving end of a topic subscription.
type Subscription struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func newSubscription() *Subscription {
	return &Subscription{
		ch:   make(chan []byte, subscriptionQueueSize),
		done: make(chan struct{}),
	}
}

// C returns the channel notifications for the topic are delivered on.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Close drops the receiver. The next notification routed to it removes the
// routing entry and answers the publishing endpoint with NotSubscribed.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

// subTable is the per-connection routing table for inbound notifications.
type subTable struct {
	mu sync.RWMutex
	m  map[string]*Subscription
}

func newSubTable() *subTable {
	return &subTable{m: make(map[string]*Subscription)}
}

func (t *subTable) get(name string) *Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.m[name]
}

func (t *subTable) add(name string, s *Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[name] = s
}

func (t *subTable) del(name string) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.m[name]
	delete(t.m, name)
	return s
}

// Requestor is the topic-level client of one connection. It wraps a dialog
// Caller with RPC, subscribe and unsubscribe operations and owns the routing
// table for inbound notifications on that connection.
type Requestor struct {
	caller dialog.Caller
	table  *subTable
}

// RPC issues a request on topic and returns the projected response.
func (r *Requestor) RPC(ctx context.Context, topic, data []byte) (RPCResponse, error) {
	resp, err := r.call(ctx, KindRPC, topic, data)
	if err != nil {
		return RPCResponse{}, err
	}
	return projectRPC(resp), nil
}

// Subscribe asks the peer to add this connection to topic's subscriber set.
// On Accepted it registers a bounded receiver for the topic's notifications
// and returns it; otherwise the subscription handle is nil.
func (r *Requestor) Subscribe(ctx context.Context, topic, data []byte) (SubscriptionResponse, *Subscription, error) {
	resp, err := r.call(ctx, KindSubscription, topic, data)
	if err != nil {
		return SubscriptionResponse{}, nil, err
	}
	p := projectSubscription(resp)
	if p.Status != StatusAccepted {
		return p, nil, nil
	}
	sub := newSubscription()
	r.table.add(string(topic), sub)
	return p, sub, nil
}

// Unsubscribe asks the peer to remove this connection from topic's
// subscriber set and, on Accepted, drops the local receiver.
func (r *Requestor) Unsubscribe(ctx context.Context, topic, data []byte) (UnsubscriptionResponse, error) {
	resp, err := r.call(ctx, KindUnsubscription, topic, data)
	if err != nil {
		return UnsubscriptionResponse{}, err
	}
	p := projectUnsubscription(resp)
	if p.Status == StatusAccepted {
		if sub := r.table.del(string(topic)); sub != nil {
			sub.Close()
		}
	}
	return p, nil
}

func (r *Requestor) call(ctx context.Context, kind RequestKind, topic, data []byte) (response, error) {
	if len(topic) > MaxTopicLen {
		return response{}, ErrTopicTooLong
	}
	payload := appendRequest(nil, Request{Kind: kind, Topic: topic, Message: data})
	resp, err := r.caller.Call(ctx, payload)
	if err != nil {
		return response{}, err
	}
	return decodeResponse(resp), nil
}
