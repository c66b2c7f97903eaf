package stream

import (
	"io"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
	"github.com/danmuck/edgewire/internal/protocol/codec"
)

// Encoder writes each value as one Write of a freshly encoded buffer.
// It keeps no state between values.
type Encoder struct {
	codec codec.Codec
}

func NewEncoder(c codec.Codec) *Encoder {
	return &Encoder{codec: c}
}

// Encode returns the wire bytes for v.
func (e *Encoder) Encode(v any) ([]byte, error) {
	return codec.Encode(e.codec, v)
}

// WriteTo encodes v and hands the bytes to w in a single Write.
func (e *Encoder) WriteTo(w io.Writer, v any) error {
	buf := buffer.New(64)
	if err := e.codec.Encode(v, buf); err != nil {
		return err
	}
	p := buf.Bytes()
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
