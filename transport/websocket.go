package transport

import (
	"context"
	"errors"
	"net"
	"net/http"

	"nhooyr.io/websocket"
)

// WebsocketOptions contains options for the websocket transport.
type WebsocketOptions struct {
	// Context used to establish and close the connection.
	Context context.Context

	// URL of the websocket endpoint.
	URL string

	// HTTPClient is used for the connection.
	HTTPClient *http.Client

	// HTTPHeader specifies the HTTP headers included in the handshake
	// request.
	HTTPHeader http.Header
}

// DialWebsocket opens a websocket connection and adapts it to a net.Conn
// carrying binary messages.
func DialWebsocket(opts WebsocketOptions) (net.Conn, error) {
	if opts.URL == "" {
		return nil, errors.New("URL cannot be empty")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	conn, _, err := websocket.Dial(opts.Context, opts.URL, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: opts.HTTPHeader,
	})
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(opts.Context, conn, websocket.MessageBinary), nil
}

// AcceptWebsocket upgrades an inbound HTTP request to a websocket connection
// and adapts it to a net.Conn carrying binary messages. The context bounds
// the connection's lifetime.
func AcceptWebsocket(ctx context.Context, w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, err
	}
	return websocket.NetConn(ctx, conn, websocket.MessageBinary), nil
}
