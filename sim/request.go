package sim

import (
	"encoding/binary"
	"errors"
)

// RequestKind identifies the sub-protocol operation carried by a request
// envelope.
type RequestKind uint8

const (
	KindRPC RequestKind = iota
	KindSubscription
	KindUnsubscription
	KindNotification
)

// MaxTopicLen is the longest topic the request envelope can carry.
const MaxTopicLen = 1<<16 - 1

// ErrTopicTooLong is returned when a topic exceeds MaxTopicLen.
var ErrTopicTooLong = errors.New("sim: topic too long")

// Request is the topic-addressed envelope carried inside a dialog payload:
// kind byte, little-endian topic length, topic, then the message as the rest
// of the payload.
type Request struct {
	Kind    RequestKind
	Topic   []byte
	Message []byte
}

// appendRequest encodes r and appends it to dst. Topics longer than
// MaxTopicLen must be rejected before encoding.
func appendRequest(dst []byte, r Request) []byte {
	dst = append(dst, byte(r.Kind))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(r.Topic)))
	dst = append(dst, r.Topic...)
	return append(dst, r.Message...)
}

// decodeRequest parses a request envelope. It reports false for unknown
// kinds and truncated envelopes.
func decodeRequest(b []byte) (Request, bool) {
	if len(b) < 3 || b[0] > byte(KindNotification) {
		return Request{}, false
	}
	topicLen := int(binary.LittleEndian.Uint16(b[1:3]))
	if len(b)-3 < topicLen {
		return Request{}, false
	}
	return Request{
		Kind:    RequestKind(b[0]),
		Topic:   b[3 : 3+topicLen],
		Message: b[3+topicLen:],
	}, true
}
