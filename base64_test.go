package dictrd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeBase64Empty(t *testing.T) {
	v, err := decodeBase64("")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestDecodeBase64SingleDigits(t *testing.T) {
	var tests = []struct {
		in   string
		want uint64
	}{
		{"A", 0},
		{"Z", 25},
		{"a", 26},
		{"z", 51},
		{"0", 52},
		{"9", 61},
		{"+", 62},
		{"/", 63},
	}
	for _, tc := range tests {
		v, err := decodeBase64(tc.in)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, v, "decode(%q)", tc.in)
	}
}

func TestDecodeBase64MultiDigit(t *testing.T) {
	// "BA" -> digit0 = 'A' = 0 (weight 1), digit1 = 'B' = 1 (weight 64)
	v, err := decodeBase64("BA")
	assert.NoError(t, err)
	assert.Equal(t, uint64(64), v)

	// "AB" -> digit0 = 'B' = 1 (weight 1), digit1 = 'A' = 0 (weight 64)
	v, err = decodeBase64("AB")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestDecodeBase64Invalid(t *testing.T) {
	_, err := decodeBase64("A!B")
	assert.ErrorIs(t, err, ErrInvalidBase64)
}

func TestDecodeBase64NonNegative(t *testing.T) {
	for _, s := range []string{"A", "Z", "a", "z", "0", "9", "+", "/", "", "ZZZZ"} {
		v, err := decodeBase64(s)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, v, uint64(0))
	}
}
