package hexutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToHex(t *testing.T) {
	assert.Equal(t, "0x", BytesToHex(nil))
	assert.Equal(t, "0x00", BytesToHex([]byte{0}))
	assert.Equal(t, "0x6563686f", BytesToHex([]byte("echo")))
}
