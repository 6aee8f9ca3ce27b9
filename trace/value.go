// Package trace holds the signal-change data model for a waveform capture:
// fixed-width values, hierarchical signals, the change store loaded from a
// waveform reader, and pattern resolution over the signal hierarchy.
package trace

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Value is a fixed-width bit vector sampled from a capture. A Value may be
// unknown: captures use four-state logic, and a signal has no defined value
// before its first recorded change. Unknown is distinct from zero.
type Value struct {
	bits    []byte // big-endian, (width+7)/8 bytes
	width   int
	unknown bool
}

// Unknown returns the undefined value for a signal of the given width.
func Unknown(width int) Value {
	return Value{width: width, unknown: true}
}

// NewValue builds a value of the given width from big-endian bytes.
// Short input is zero-extended at the top; excess leading bytes are dropped.
func NewValue(width int, bits []byte) Value {
	n := (width + 7) / 8
	b := make([]byte, n)
	if len(bits) > n {
		bits = bits[len(bits)-n:]
	}
	copy(b[n-len(bits):], bits)
	if width%8 != 0 && n > 0 {
		b[0] &= byte(0xFF >> (8 - width%8))
	}
	return Value{bits: b, width: width}
}

// ValueFromUint64 builds a value of the given width from an integer.
func ValueFromUint64(width int, v uint64) Value {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return NewValue(width, b)
}

// ValueFromBitString builds a value from a binary string as found in VCD
// vector changes ("b0101"-style, without the leading 'b'). Any 'x' or 'z'
// digit makes the whole value unknown.
func ValueFromBitString(width int, s string) Value {
	if strings.ContainsAny(strings.ToLower(s), "xz") {
		return Unknown(width)
	}
	v := NewValue(width, nil)
	n := len(s)
	for i := 0; i < n && i < width; i++ {
		if s[n-1-i] == '1' {
			v.setBit(i)
		}
	}
	return v
}

// Width returns the declared bit width.
func (v Value) Width() int { return v.width }

// IsUnknown reports whether the value is undefined.
func (v Value) IsUnknown() bool { return v.unknown }

// Bool reports whether any bit is set. Unknown values report false.
func (v Value) Bool() bool {
	if v.unknown {
		return false
	}
	for _, b := range v.bits {
		if b != 0 {
			return true
		}
	}
	return false
}

// Bit returns bit i (0 = least significant). Out-of-range or unknown bits
// read as false.
func (v Value) Bit(i int) bool {
	if v.unknown || i < 0 || i >= v.width {
		return false
	}
	byteIdx := len(v.bits) - 1 - i/8
	return v.bits[byteIdx]&(1<<(i%8)) != 0
}

func (v *Value) setBit(i int) {
	byteIdx := len(v.bits) - 1 - i/8
	v.bits[byteIdx] |= 1 << (i % 8)
}

// Uint64 returns the value as an integer. Values wider than 64 bits are
// truncated to the low 64. Unknown values return 0.
func (v Value) Uint64() uint64 {
	if v.unknown {
		return 0
	}
	var out uint64
	for _, b := range v.bits {
		out = out<<8 | uint64(b)
	}
	return out
}

// Bytes returns a copy of the value as big-endian bytes, most significant
// byte first. Unknown values return a zeroed slice of the padded width.
func (v Value) Bytes() []byte {
	n := (v.width + 7) / 8
	out := make([]byte, n)
	copy(out, v.bits)
	return out
}

// BytesLE returns a copy of the value with the least significant byte first.
// Streaming buses put byte lane 0 in the low bits of the data vector, so
// lane order on the wire is the reverse of the capture's bit order.
func (v Value) BytesLE() []byte {
	be := v.Bytes()
	out := make([]byte, len(be))
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out
}

// Equal reports whether two values have the same width, definedness and bits.
func (v Value) Equal(o Value) bool {
	if v.width != o.width || v.unknown != o.unknown {
		return false
	}
	if v.unknown {
		return true
	}
	for i := range v.bits {
		if v.bits[i] != o.bits[i] {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	if v.unknown {
		return fmt.Sprintf("x[%d]", v.width)
	}
	if v.width == 1 {
		if v.Bool() {
			return "1"
		}
		return "0"
	}
	return "0x" + hex.EncodeToString(v.Bytes())
}
