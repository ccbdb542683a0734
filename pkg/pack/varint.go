package pack

import (
	"bufio"
	"io"

	"github.com/worldline-systems/wll/pkg/wllerr"
)

// writeVarint encodes v as little-endian base-128 with a continuation
// bit set on every byte but the last (§4.2 Varint).
func writeVarint(w io.Writer, v uint64) error {
	var buf [10]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if v == 0 {
			break
		}
	}
	_, err := w.Write(buf[:n])
	return err
}

// readVarint decodes a varint, returning wllerr.ErrVarintOverflow if more
// than 10 bytes (70 payload bits) are consumed without a terminator.
func readVarint(r *bufio.Reader) (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
	return 0, wllerr.Wrap(wllerr.ErrVarintOverflow, nil)
}
