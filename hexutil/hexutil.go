// Package hexutil renders opaque byte sequences as hex strings. Topics and
// payloads are arbitrary bytes, so log output uses this form instead of
// assuming UTF-8.
package hexutil

import "encoding/hex"

// BytesToHex returns the hex representation of the given bytes. The hex string
// is always even-length and prefixed with "0x".
func BytesToHex(b []byte) string {
	r := make([]byte, len(b)*2+2)
	copy(r, `0x`)
	hex.Encode(r[2:], b)
	return string(r)
}
