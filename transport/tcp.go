package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TCPOptions contains options for the TCP transport.
type TCPOptions struct {
	// Context used while establishing the connection.
	Context context.Context

	// Address is the host:port to connect to.
	Address string
}

// DialTCP connects to a TCP endpoint.
func DialTCP(opts TCPOptions) (net.Conn, error) {
	if opts.Address == "" {
		return nil, errors.New("address cannot be empty")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	var d net.Dialer
	conn, err := d.DialContext(opts.Context, "tcp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial TCP: %w", err)
	}
	return conn, nil
}

// ListenTCP starts a TCP listener on the given address.
func ListenTCP(address string) (net.Listener, error) {
	return net.Listen("tcp", address)
}
