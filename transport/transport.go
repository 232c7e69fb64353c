// Package transport provides concrete byte-stream substrates for dialog
// connections: TCP, unix domain sockets and websockets. Every transport
// yields a net.Conn; any full-duplex reliable byte stream works equally well.
package transport
