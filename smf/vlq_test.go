package smf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVarLenKnownEncodings(t *testing.T) {
	assert := assert.New(t)
	cases := map[int][]byte{
		0:          {0x00},
		0x40:       {0x40},
		0x7F:       {0x7F},
		128:        {0x81, 0x00},
		0x2000:     {0xC0, 0x00},
		0x3FFF:     {0xFF, 0x7F},
		0x4000:     {0x81, 0x80, 0x00},
		0x1FFFFF:   {0xFF, 0xFF, 0x7F},
		0x200000:   {0x81, 0x80, 0x80, 0x00},
		0x0FFFFFFF: {0xFF, 0xFF, 0xFF, 0x7F},
	}
	for value, encoded := range cases {
		var buf bytes.Buffer
		appendVarLen(&buf, value)
		assert.Equal(encoded, buf.Bytes(), "encoding %d", value)

		got, err := readVarLen(bytes.NewReader(encoded))
		assert.NoError(err)
		assert.Equal(value, got, "decoding % X", encoded)
	}
}

func TestVarLenTruncated(t *testing.T) {
	assert := assert.New(t)
	_, err := readVarLen(bytes.NewReader([]byte{0x81}))
	assert.Error(err)

	_, err = readVarLen(bytes.NewReader(nil))
	assert.Error(err)
}

func TestVarLenRoundTrip(t *testing.T) {
	assert := assert.New(t)
	for _, v := range []int{0, 1, 127, 128, 255, 480, 960, 100000, maxVarLen} {
		var buf bytes.Buffer
		appendVarLen(&buf, v)
		got, err := readVarLen(bytes.NewReader(buf.Bytes()))
		assert.NoError(err)
		assert.Equal(v, got)
	}
}
