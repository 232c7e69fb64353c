package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimOverWebsocket(t *testing.T) {
	server := echoEndpoint(t)
	connCh := make(chan net.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := AcceptWebsocket(context.Background(), w, r)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	defer srv.Close()

	clientConn, err := DialWebsocket(WebsocketOptions{
		URL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)

	testEcho(t, server, <-connCh, clientConn)
}

func TestDialWebsocketEmptyURL(t *testing.T) {
	_, err := DialWebsocket(WebsocketOptions{})
	assert.Error(t, err)
}
