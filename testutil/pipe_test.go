package testutil

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRoundtrip(t *testing.T) {
	a, b := Pipe()

	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf[:n])
}

func TestPipeShortRead(t *testing.T) {
	a, b := Pipe()

	_, err := a.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("he"), buf[:n])

	// The remainder stays buffered for the next read.
	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("ll"), buf[:n])

	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("o"), buf[:n])
}

func TestPipeEOFAfterDrain(t *testing.T) {
	a, b := Pipe()

	_, err := a.Write([]byte("bye"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	buf := make([]byte, 16)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("bye"), buf[:n])

	_, err = b.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	_, err = b.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestPipeCloseTwice(t *testing.T) {
	a, _ := Pipe()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
