package tlv

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
	"github.com/danmuck/edgewire/internal/protocol/codec"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
	ErrValueLength      = errors.New("tlv: invalid value length")
)

// Type IDs carried in the one-byte type slot.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// FieldCodec is id(u16) type(u8) len(u32) value. Decoded values are
// []any{uint16, uint8, []byte}.
var FieldCodec = codec.NewFrame(
	codec.Uint16,
	codec.Uint8,
	codec.MustByteBlock(codec.BlockOptions{Prefix: codec.Uint32, MaxLength: math.MaxInt32}),
)

// Codec adapts FieldCodec to Field values so it can drive a stream.Decoder.
var Codec codec.Codec = fieldCodec{}

type fieldCodec struct{}

func (fieldCodec) Encode(v any, buf *buffer.Buffer) error {
	f, ok := v.(Field)
	if !ok {
		return fmt.Errorf("%w: tlv got %T", codec.ErrValueType, v)
	}
	return FieldCodec.Encode([]any{f.ID, f.Type, f.Value}, buf)
}

func (fieldCodec) Decode(buf *buffer.Buffer) (any, bool, error) {
	v, ok, err := FieldCodec.Decode(buf)
	if err != nil || !ok {
		return nil, false, err
	}
	parts := v.([]any)
	return Field{ID: parts[0].(uint16), Type: parts[1].(uint8), Value: parts[2].([]byte)}, true, nil
}

func EncodeField(f Field) ([]byte, error) {
	return codec.Encode(Codec, f)
}

func EncodeFields(fields []Field) ([]byte, error) {
	buf := buffer.New(0)
	for _, f := range fields {
		if err := Codec.Encode(f, buf); err != nil {
			return nil, fmt.Errorf("tlv: field %d: %w", f.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeFields parses a complete payload. Unknown ids are preserved.
func DecodeFields(payload []byte) ([]Field, error) {
	buf := buffer.From(payload)
	fields := make([]Field, 0)
	for buf.Readable() > 0 {
		if buf.Readable() < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		v, ok, err := Codec.Decode(buf)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrShortFieldValue
		}
		fields = append(fields, v.(Field))
	}
	return fields, nil
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("%w: field %d got %d want %d", ErrTypeMismatch, f.ID, f.Type, expected)
	}
	return nil
}

var scalarByType = map[uint8]codec.Scalar{
	TypeU8:   codec.Uint8,
	TypeU16:  codec.Uint16,
	TypeU32:  codec.Uint32,
	TypeU64:  codec.Uint64,
	TypeBool: codec.Uint8,
}

// Uint builds an unsigned integer field of the given type.
func Uint(id uint16, typ uint8, v uint64) (Field, error) {
	s, ok := scalarByType[typ]
	if !ok || typ == TypeBool {
		return Field{}, fmt.Errorf("%w: type %d is not an unsigned integer", ErrTypeMismatch, typ)
	}
	raw, err := codec.Encode(s, v)
	if err != nil {
		return Field{}, fmt.Errorf("tlv: field %d: %w", id, err)
	}
	return Field{ID: id, Type: typ, Value: raw}, nil
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: append([]byte(nil), v...)}
}

// AsUint reads any unsigned integer field, checking the value width
// against its declared type.
func AsUint(f Field) (uint64, error) {
	s, ok := scalarByType[f.Type]
	if !ok || f.Type == TypeBool {
		return 0, fmt.Errorf("%w: field %d type %d is not an unsigned integer", ErrTypeMismatch, f.ID, f.Type)
	}
	if len(f.Value) != s.Size() {
		return 0, fmt.Errorf("%w: field %d has %d bytes want %d", ErrValueLength, f.ID, len(f.Value), s.Size())
	}
	v, _, _ := s.Decode(buffer.From(f.Value))
	switch x := v.(type) {
	case uint8:
		return uint64(x), nil
	case uint16:
		return uint64(x), nil
	case uint32:
		return uint64(x), nil
	default:
		return v.(uint64), nil
	}
}

func AsBool(f Field) (bool, error) {
	if err := MustType(f, TypeBool); err != nil {
		return false, err
	}
	if len(f.Value) != 1 {
		return false, fmt.Errorf("%w: field %d has %d bytes want 1", ErrValueLength, f.ID, len(f.Value))
	}
	return f.Value[0] != 0, nil
}

func AsString(f Field) (string, error) {
	if err := MustType(f, TypeString); err != nil {
		return "", err
	}
	return string(f.Value), nil
}

func U32FromBytes(b []byte) (uint32, error) {
	v, err := AsUint(Field{Type: TypeU32, Value: b})
	if err != nil {
		return 0, fmt.Errorf("%w: invalid u32 length: %d", ErrValueLength, len(b))
	}
	return uint32(v), nil
}
