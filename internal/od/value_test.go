package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		NewBool(true),
		NewInt8(-5),
		NewInt16(-1000),
		NewInt32(-100000),
		NewUint8(200),
		NewUint16(50000),
		NewUint32(4000000000),
		NewReal32(3.25),
	}
	for _, v := range cases {
		wire := v.EncodeLE(nil)
		assert.Len(t, wire, v.Kind().Width())

		got, err := v.DecodeLE(wire)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestDecodeShortBufferFails(t *testing.T) {
	v := NewUint32(0)
	_, err := v.DecodeLE([]byte{1, 2})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDecodeUnknownFails(t *testing.T) {
	v := NewUnknown()
	_, err := v.DecodeLE([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestEncodeLittleEndian(t *testing.T) {
	wire := NewUint16(0x1234).EncodeLE(nil)
	assert.Equal(t, []byte{0x34, 0x12}, wire)

	wire = NewInt32(-1).EncodeLE(nil)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, wire)
}
