package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
)

// Scalar is a fixed-width big-endian codec.
type Scalar struct {
	name   string
	size   int
	encode func(v any) (uint64, error)
	decode func(raw uint64) any
}

var (
	Uint8   = unsignedScalar("uint8", 1, func(u uint64) any { return uint8(u) })
	Int8    = signedScalar("int8", 1, func(n int64) any { return int8(n) })
	Uint16  = unsignedScalar("uint16", 2, func(u uint64) any { return uint16(u) })
	Int16   = signedScalar("int16", 2, func(n int64) any { return int16(n) })
	Uint24  = unsignedScalar("uint24", 3, func(u uint64) any { return uint32(u) })
	Int24   = signedScalar("int24", 3, func(n int64) any { return int32(n) })
	Uint32  = unsignedScalar("uint32", 4, func(u uint64) any { return uint32(u) })
	Int32   = signedScalar("int32", 4, func(n int64) any { return int32(n) })
	Uint64  = unsignedScalar("uint64", 8, func(u uint64) any { return u })
	Int64   = signedScalar("int64", 8, func(n int64) any { return n })
	Float32 = Scalar{name: "float32", size: 4, encode: encodeFloat32, decode: decodeFloat32}
	Float64 = Scalar{name: "float64", size: 8, encode: encodeFloat64, decode: decodeFloat64}
)

// Scalars indexes the scalar codecs by name.
var Scalars = map[string]Scalar{
	Uint8.name:   Uint8,
	Int8.name:    Int8,
	Uint16.name:  Uint16,
	Int16.name:   Int16,
	Uint24.name:  Uint24,
	Int24.name:   Int24,
	Uint32.name:  Uint32,
	Int32.name:   Int32,
	Uint64.name:  Uint64,
	Int64.name:   Int64,
	Float32.name: Float32,
	Float64.name: Float64,
}

func (s Scalar) Name() string { return s.name }

// Size is the encoded width in bytes.
func (s Scalar) Size() int { return s.size }

func (s Scalar) Encode(v any, buf *buffer.Buffer) error {
	raw, err := s.encode(v)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], raw)
	_, _ = buf.Write(tmp[8-s.size:])
	return nil
}

func (s Scalar) Decode(buf *buffer.Buffer) (any, bool, error) {
	p, ok := buf.Next(s.size)
	if !ok {
		return nil, false, nil
	}
	var raw uint64
	for _, c := range p {
		raw = raw<<8 | uint64(c)
	}
	return s.decode(raw), true, nil
}

func unsignedScalar(name string, size int, out func(uint64) any) Scalar {
	max := uint64(math.MaxUint64) >> (64 - 8*size)
	return Scalar{
		name: name,
		size: size,
		encode: func(v any) (uint64, error) {
			i, ok := asInteger(v)
			if !ok {
				return 0, fmt.Errorf("%w: %T", ErrValueType, v)
			}
			u, ok := i.unsignedIn(max)
			if !ok {
				return 0, fmt.Errorf("%w: %v", ErrValueRange, v)
			}
			return u, nil
		},
		decode: out,
	}
}

func signedScalar(name string, size int, out func(int64) any) Scalar {
	bits := uint(8 * size)
	max := uint64(1)<<(bits-1) - 1
	return Scalar{
		name: name,
		size: size,
		encode: func(v any) (uint64, error) {
			i, ok := asInteger(v)
			if !ok {
				return 0, fmt.Errorf("%w: %T", ErrValueType, v)
			}
			n, ok := i.signedIn(max)
			if !ok {
				return 0, fmt.Errorf("%w: %v", ErrValueRange, v)
			}
			return uint64(n), nil
		},
		decode: func(raw uint64) any {
			shift := 64 - bits
			return out(int64(raw<<shift) >> shift)
		},
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	i, ok := asInteger(v)
	if !ok {
		return 0, false
	}
	if i.neg {
		n, _ := i.signedIn(math.MaxInt64)
		return float64(n), true
	}
	return float64(i.mag), true
}

func encodeFloat32(v any) (uint64, error) {
	if f, ok := v.(float32); ok {
		return uint64(math.Float32bits(f)), nil
	}
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrValueType, v)
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, fmt.Errorf("%w: %v", ErrValueRange, v)
	}
	return uint64(math.Float32bits(float32(f))), nil
}

func decodeFloat32(raw uint64) any {
	return math.Float32frombits(uint32(raw))
}

func encodeFloat64(v any) (uint64, error) {
	f, ok := asFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %T", ErrValueType, v)
	}
	return math.Float64bits(f), nil
}

func decodeFloat64(raw uint64) any {
	return math.Float64frombits(raw)
}
