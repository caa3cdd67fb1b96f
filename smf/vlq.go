package smf

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// maxVarLen is the largest value a MIDI variable-length quantity can hold:
// four bytes of seven payload bits each.
const maxVarLen = 0x0FFFFFFF

// readVarLen decodes a variable-length quantity: 7 bits per byte, big-endian
// accumulation, continuation via the high bit. io.EOF is returned untouched
// only when the stream ends before the first byte, so track loops can use it
// as their termination condition.
func readVarLen(r *bytes.Reader) (int, error) {
	value := 0
	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i == 0 && err == io.EOF {
				return 0, io.EOF
			}
			return 0, errors.Wrap(ErrTruncated, "variable-length quantity cut short")
		}
		value = value<<7 | int(b&0x7F)
		if b&0x80 == 0 {
			return value, nil
		}
	}
	return 0, errors.Wrap(ErrFormat, "variable-length quantity longer than 4 bytes")
}

// appendVarLen encodes n as a variable-length quantity onto buf.
func appendVarLen(buf *bytes.Buffer, n int) error {
	if n < 0 || n > maxVarLen {
		return errors.Wrapf(ErrFormat, "value %d out of variable-length range", n)
	}
	// Break into 7-bit groups, most significant first.
	var groups [4]byte
	count := 1
	groups[0] = byte(n & 0x7F)
	n >>= 7
	for n != 0 {
		groups[count] = byte(n&0x7F) | 0x80
		count++
		n >>= 7
	}
	for i := count - 1; i >= 0; i-- {
		buf.WriteByte(groups[i])
	}
	return nil
}
