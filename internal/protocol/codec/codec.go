package codec

import (
	"errors"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
)

// Codec encodes values into and decodes values out of a shared buffer.
// Implementations hold no mutable state and are safe for concurrent use.
type Codec interface {
	Encode(v any, buf *buffer.Buffer) error
	// Decode returns ok=false with a nil error when more bytes are needed.
	Decode(buf *buffer.Buffer) (v any, ok bool, err error)
}

// Encode writes v into a freshly allocated buffer and returns its bytes.
func Encode(c Codec, v any) ([]byte, error) {
	buf := buffer.New(64)
	if err := c.Encode(v, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes v at the write cursor of buf. On failure the bytes
// written so far are left in place; callers that reuse buf should discard it.
func EncodeTo(c Codec, v any, buf *buffer.Buffer) error {
	return c.Encode(v, buf)
}

// Decode runs c against buf and restores the read cursor unless a value
// was produced.
func Decode(c Codec, buf *buffer.Buffer) (any, bool, error) {
	at := buf.Snapshot()
	v, ok, err := c.Decode(buf)
	if err != nil || !ok {
		_ = buf.Restore(at)
		return nil, false, err
	}
	return v, true, nil
}

// Named wraps c so that errors it returns carry name in their path.
func Named(name string, c Codec) Codec {
	return named{name: name, inner: c}
}

type named struct {
	name  string
	inner Codec
}

func (n named) Encode(v any, buf *buffer.Buffer) error {
	if err := n.inner.Encode(v, buf); err != nil {
		var ee *EncodeError
		if errors.As(err, &ee) {
			return &EncodeError{Path: n.name + "." + ee.Path, Err: ee.Err}
		}
		return &EncodeError{Path: n.name, Err: err}
	}
	return nil
}

func (n named) Decode(buf *buffer.Buffer) (any, bool, error) {
	v, ok, err := n.inner.Decode(buf)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, false, &DecodeError{Path: n.name + "." + de.Path, Err: de.Err}
		}
		return nil, false, &DecodeError{Path: n.name, Err: err}
	}
	return v, ok, nil
}
