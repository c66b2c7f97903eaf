package codec

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOptions       = errors.New("codec: invalid options")
	ErrValueType            = errors.New("codec: unexpected value type")
	ErrValueRange           = errors.New("codec: value out of range")
	ErrFrameArity           = errors.New("codec: frame value count mismatch")
	ErrUnknownSymbol        = errors.New("codec: unknown enum symbol")
	ErrUnknownEnumValue     = errors.New("codec: unknown enum value")
	ErrUnknownDiscriminator = errors.New("codec: unknown discriminator")
	ErrLengthExceeded       = errors.New("codec: length exceeds limit")
	ErrDelimiterNotFound    = errors.New("codec: delimiter not found within limit")
	ErrDelimiterInText      = errors.New("codec: text contains delimiter")
	ErrTextEncoding         = errors.New("codec: text encoding failed")
)

// DecodeError attaches a field path to a malformed-input error.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError attaches a field path to an encode failure.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("codec: encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
