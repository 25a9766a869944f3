package version

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanning6/etl-off-sqs/internal/errs"
)

func mustEncode(t *testing.T, v string) uint32 {
	t.Helper()
	p, err := Encode(v)
	require.NoError(t, err, v)
	return p
}

func TestEncode(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"0.0.0", 0},
		{"2.10.1", 133633},
		{"1.0.0", 1 << 16},
		{"0.1.0", 1 << 8},
		{"0.0.1", 1},
		{"255.255.255", 0xFFFFFF},
		{"1.2", 1<<16 | 2<<8},
		{"5", 5 << 16},
		{"1.2.3.4.5", 1<<16 | 2<<8 | 3},
		{"007.08.09", 7<<16 | 8<<8 | 9},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, mustEncode(t, c.in), c.in)
	}
}

func TestEncodeMissingParts(t *testing.T) {
	assert.Equal(t, mustEncode(t, "1.2.0"), mustEncode(t, "1.2"))
	assert.Equal(t, mustEncode(t, "5.0.0"), mustEncode(t, "5"))
}

func TestEncodeOverflow(t *testing.T) {
	assert.Equal(t, mustEncode(t, "0.0.0"), mustEncode(t, "256.0.0"))
	assert.Equal(t, mustEncode(t, "2.0.0"), mustEncode(t, "1.256.0"))
	assert.Equal(t, mustEncode(t, "0.1.0"), mustEncode(t, "0.0.256"))
	// 300 = 0x12C: the high bit ORs into minor, the rest stays in patch.
	assert.Equal(t, uint32(1<<16|1<<8|0x2C), mustEncode(t, "1.0.300"))
}

func TestEncodeMalformed(t *testing.T) {
	for _, in := range []string{"", ".", "1..2", "a.b.c", "1.-2.3", "+1", " 1.2", "1.2.x", "1.2."} {
		_, err := Encode(in)
		assert.True(t, errors.Is(err, errs.ErrMalformedVersion), "input %q: %v", in, err)
	}
}

func TestEncodeHugeParts(t *testing.T) {
	// 2^32 and 2^24 have no bits below 2^24
	assert.Equal(t, uint32(0), mustEncode(t, "4294967296.0.0"))
	assert.Equal(t, uint32(0), mustEncode(t, "0.0.16777216"))
	// 2^24+1 keeps its low bit; as patch that is 1
	assert.Equal(t, uint32(1), mustEncode(t, "0.0.16777217"))
	// 99999999999 mod 2^24 = 0x76E7FF; as patch all 24 bits land
	assert.Equal(t, uint32(99999999999%(1<<24)), mustEncode(t, "0.0.99999999999"))
	_, err := Encode(strings.Repeat("9", 200) + ".1.2")
	assert.NoError(t, err)
}

func TestEncodeIgnoresExtraParts(t *testing.T) {
	assert.Equal(t, mustEncode(t, "1.2.3"), mustEncode(t, "1.2.3.beta"))
}

func TestRoundTrip(t *testing.T) {
	for _, v := range [][3]int{{0, 0, 0}, {2, 10, 1}, {255, 0, 255}, {17, 42, 99}, {255, 255, 255}} {
		s := fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
		major, minor, patch := Decode(mustEncode(t, s))
		assert.Equal(t, v, [3]int{int(major), int(minor), int(patch)}, s)
	}
}

func TestStrict(t *testing.T) {
	require.NoError(t, Strict("255.255.255"))
	require.NoError(t, Strict("1.2"))

	err := Strict("1.256.0")
	assert.True(t, errors.Is(err, errs.ErrVersionOutOfRange), "%v", err)

	err = Strict("4294967296.0.0")
	assert.True(t, errors.Is(err, errs.ErrVersionOutOfRange), "%v", err)

	err = Strict("x")
	assert.True(t, errors.Is(err, errs.ErrMalformedVersion), "%v", err)
}
