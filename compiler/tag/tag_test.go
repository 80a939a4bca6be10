package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoding(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, -2147483648, 2147483647, MaxInt, MinInt} {
		w := EncodeInt(n)

		assert.True(t, IsNum(w), "%d", n)
		assert.False(t, IsBool(w), "%d", n)
		assert.Equal(t, n, DecodeInt(w))
	}

	assert.True(t, IsBool(True))
	assert.True(t, IsBool(False))
	assert.NotEqual(t, True, False)

	assert.Equal(t, True, EncodeBool(true))
	assert.Equal(t, False, EncodeBool(false))

	// no number encodes to a boolean
	assert.NotEqual(t, EncodeInt(1), True)
	assert.NotEqual(t, EncodeInt(0), False)
}

func TestRange(t *testing.T) {
	assert.True(t, InRange(MaxInt))
	assert.True(t, InRange(MinInt))
	assert.False(t, InRange(MaxInt+1))
	assert.False(t, InRange(MinInt-1))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "true", Format(True))
	assert.Equal(t, "false", Format(False))
	assert.Equal(t, "-5", Format(EncodeInt(-5)))
	assert.Equal(t, "0", Format(EncodeInt(0)))
	assert.Equal(t, "unknown value: 7", Format(7))
}
