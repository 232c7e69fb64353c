package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseRoundtrip(t *testing.T) {
	tests := []response{
		{Status: StatusAccepted, Body: []byte("result")},
		{Status: StatusTopicNotFound},
		{Status: StatusAlreadySubscribed},
		{Status: StatusRejected, Body: []byte("reason")},
		{Status: StatusNotSubscribed},
		{Status: StatusNotified},
		{Status: StatusInvalidRequest},
	}
	for _, r := range tests {
		got := decodeResponse(appendResponse(nil, r))
		assert.Equal(t, r.Status, got.Status)
		if len(r.Body) > 0 {
			assert.Equal(t, r.Body, got.Body)
		} else {
			assert.Empty(t, got.Body)
		}
	}
}

func TestDecodeResponseUnknownTag(t *testing.T) {
	got := decodeResponse([]byte{42, 1, 2})
	assert.Equal(t, StatusInvalidResponse, got.Status)

	got = decodeResponse(nil)
	assert.Equal(t, StatusInvalidResponse, got.Status)
}

func TestProjections(t *testing.T) {
	// Admissible statuses pass through with their body.
	rpc := projectRPC(response{Status: StatusAccepted, Body: []byte("x")})
	assert.Equal(t, StatusAccepted, rpc.Status)
	assert.Equal(t, []byte("x"), rpc.Body)

	sub := projectSubscription(response{Status: StatusAlreadySubscribed})
	assert.Equal(t, StatusAlreadySubscribed, sub.Status)

	unsub := projectUnsubscription(response{Status: StatusNotSubscribed})
	assert.Equal(t, StatusNotSubscribed, unsub.Status)

	notif := projectNotification(response{Status: StatusNotified})
	assert.Equal(t, StatusNotified, notif.Status)

	// Rejections belong to subscriptions only.
	assert.Equal(t, StatusRejected, projectSubscription(response{Status: StatusRejected, Body: []byte("no")}).Status)
	assert.Equal(t, StatusInvalidResponse, projectRPC(response{Status: StatusRejected}).Status)
	assert.Equal(t, StatusInvalidResponse, projectUnsubscription(response{Status: StatusRejected}).Status)

	// Other inadmissible statuses collapse to the local-only invalid
	// response.
	assert.Equal(t, StatusInvalidResponse, projectRPC(response{Status: StatusNotified}).Status)
	assert.Equal(t, StatusInvalidResponse, projectRPC(response{Status: StatusAlreadySubscribed}).Status)
	assert.Equal(t, StatusInvalidResponse, projectSubscription(response{Status: StatusNotified}).Status)
	assert.Equal(t, StatusInvalidResponse, projectUnsubscription(response{Status: StatusAlreadySubscribed}).Status)
	assert.Equal(t, StatusInvalidResponse, projectNotification(response{Status: StatusAccepted}).Status)
}
