package dialog

import "encoding/binary"

// headerLen is the fixed size of the frame header: one type byte followed by
// the little-endian payload length and frame id.
const headerLen = 1 + 8 + 8

// AppendFrame encodes f and appends the encoded bytes to dst, growing it as
// needed. Encoding never fails.
func AppendFrame(dst []byte, f Frame) []byte {
	dst = append(dst, byte(f.Type))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(f.Payload)))
	dst = binary.LittleEndian.AppendUint64(dst, f.ID)
	return append(dst, f.Payload...)
}

// Decoder incrementally decodes frames from a byte stream. Feed appends raw
// bytes as they arrive; Decode splits off one frame at a time once enough
// bytes are buffered. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Feed appends raw stream bytes to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Decode returns the next complete frame. It reports false without consuming
// anything when the buffer does not yet hold a full frame.
func (d *Decoder) Decode() (Frame, bool) {
	if len(d.buf) < headerLen {
		return Frame{}, false
	}
	payloadLen := binary.LittleEndian.Uint64(d.buf[1:9])
	if uint64(len(d.buf)-headerLen) < payloadLen {
		return Frame{}, false
	}
	f := Frame{
		Type:    frameTypeFromByte(d.buf[0]),
		ID:      binary.LittleEndian.Uint64(d.buf[9:headerLen]),
		Payload: make([]byte, payloadLen),
	}
	end := headerLen + int(payloadLen)
	copy(f.Payload, d.buf[headerLen:end])
	d.buf = d.buf[end:]
	return f, true
}
