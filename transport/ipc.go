package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// IPCOptions contains options for the IPC transport.
type IPCOptions struct {
	// Context used while establishing the connection.
	Context context.Context

	// Path is the path to the IPC socket.
	Path string
}

// DialIPC connects to a unix domain socket.
func DialIPC(opts IPCOptions) (net.Conn, error) {
	if opts.Path == "" {
		return nil, errors.New("path cannot be empty")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	var d net.Dialer
	conn, err := d.DialContext(opts.Context, "unix", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to dial IPC: %w", err)
	}
	return conn, nil
}

// ListenIPC starts a listener on a unix domain socket.
func ListenIPC(path string) (net.Listener, error) {
	return net.Listen("unix", path)
}
