package tarblock

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

type parser struct {
	err error
}

// parseString parses b as a NUL-terminated C-style string.
func (*parser) parseString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// parseNumeric parses b as GNU base-256 when the high bit of the first byte is set, octal otherwise.
func (p *parser) parseNumeric(b []byte) int64 {
	if len(b) > 0 && b[0]&0x80 != 0 {
		// Two's complement, big-endian; -a-1 == ^a handles negative values.
		var inv byte
		if b[0]&0x40 != 0 {
			inv = 0xff
		}
		var x uint64
		for i, c := range b {
			c ^= inv
			if i == 0 {
				c &= 0x7f
			}
			if x>>56 > 0 {
				p.err = ErrOverflow
				return 0
			}
			x = x<<8 | uint64(c)
		}
		if x>>63 > 0 {
			p.err = ErrOverflow
			return 0
		}
		if inv == 0xff {
			return ^int64(x)
		}
		return int64(x)
	}
	return p.parseOctal(b)
}

func (p *parser) parseOctal(b []byte) int64 {
	// Unused fields are NUL filled, some writers pad with spaces.
	b = bytes.Trim(b, " \x00")
	if len(b) == 0 {
		return 0
	}
	x, err := strconv.ParseUint(p.parseString(b), 8, 64)
	switch {
	case errors.Is(err, strconv.ErrRange):
		p.err = ErrOverflow
	case err != nil:
		p.err = ErrFormat
	case x>>63 > 0:
		p.err = ErrOverflow
	}
	return int64(x)
}

type formatter struct {
	err     error
	base256 bool
}

// formatString copies s into b, truncating it and NUL terminating it when there is room.
func (*formatter) formatString(b []byte, s string) {
	n := copy(b, s)
	if n < len(b) {
		b[n] = 0
	}
}

func (f *formatter) formatNumeric(b []byte, x int64) {
	if fitsInOctal(len(b), x) {
		f.formatOctal(b, x)
		return
	}
	if f.base256 && fitsInBase256(len(b), x) {
		for i := len(b) - 1; i >= 0; i-- {
			b[i] = byte(x)
			x >>= 8
		}
		b[0] |= 0x80
		return
	}
	f.formatOctal(b, 0)
	f.err = ErrOverflow
}

func (f *formatter) formatOctal(b []byte, x int64) {
	if !fitsInOctal(len(b), x) {
		x = 0
		f.err = ErrOverflow
	}
	s := strconv.FormatInt(x, 8)
	// Leading zeros, leaving room for the NUL.
	if n := len(b) - len(s) - 1; n > 0 {
		s = strings.Repeat("0", n) + s
	}
	f.formatString(b, s)
}

func fitsInOctal(n int, x int64) bool {
	octBits := uint(n-1) * 3
	return x >= 0 && (n >= 22 || x < 1<<octBits)
}

func fitsInBase256(n int, x int64) bool {
	binBits := uint(n-1) * 8
	return n >= 9 || (x >= -1<<binBits && x < 1<<binBits)
}
