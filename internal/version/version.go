// Package version packs dotted app versions into a compact integer.
//
// The packed layout is three 8-bit fields, major<<16 | minor<<8 | patch.
// Parts are not range checked: a part >= 256 spills into the next field up,
// and anything spilling past the major field is dropped. Any run of digits
// is a valid part, however long; only its low 24 bits can reach the packed
// value. Downstream readers depend on these exact bits, so callers that want
// to reject such versions use Strict before Encode.
package version

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/yuanning6/etl-off-sqs/internal/errs"
)

const (
	fieldBits = 8
	fieldMax  = 1<<fieldBits - 1
	packMask  = 1<<(3*fieldBits) - 1
)

// part is one version component reduced modulo 2^24. wide is set when the
// written number was larger than that.
type part struct {
	low  uint32
	wide bool
}

// Encode packs v. Missing trailing parts count as zero and parts after the
// third are ignored.
func Encode(v string) (uint32, error) {
	parts, err := split(v)
	if err != nil {
		return 0, err
	}
	packed := parts[0].low<<(2*fieldBits) | parts[1].low<<fieldBits | parts[2].low
	return packed & packMask, nil
}

// Decode splits a packed value back into its three fields.
func Decode(p uint32) (major, minor, patch uint8) {
	return uint8(p >> (2 * fieldBits)), uint8(p >> fieldBits), uint8(p)
}

// Strict reports ErrVersionOutOfRange when any part would overflow its field.
func Strict(v string) error {
	parts, err := split(v)
	if err != nil {
		return err
	}
	for i, p := range parts {
		if p.wide || p.low > fieldMax {
			return errors.Wrapf(errs.ErrVersionOutOfRange, "part %d of %q exceeds %d", i, v, fieldMax)
		}
	}
	return nil
}

func split(v string) ([3]part, error) {
	var out [3]part
	if v == "" {
		return out, errors.Wrap(errs.ErrMalformedVersion, "empty version")
	}
	raw := strings.Split(v, ".")
	if len(raw) > len(out) {
		raw = raw[:len(out)]
	}
	for i, s := range raw {
		p, err := parsePart(s)
		if err != nil {
			return out, errors.Wrapf(errs.ErrMalformedVersion, "part %d of %q: %v", i, v, err)
		}
		out[i] = p
	}
	return out, nil
}

// parsePart accepts plain ASCII digits only and reduces as it goes, so no
// length of input can overflow.
func parsePart(s string) (part, error) {
	var p part
	if s == "" {
		return p, errors.New("empty part")
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return p, errors.Errorf("non-digit %q", c)
		}
		n = n*10 + uint64(c-'0')
		if n > packMask {
			p.wide = true
			n &= packMask
		}
	}
	p.low = uint32(n)
	return p, nil
}
