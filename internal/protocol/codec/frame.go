package codec

import (
	"fmt"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
)

// Frame is an ordered, fixed-arity sequence of codecs. Its values are
// []any aligned with the codecs.
type Frame struct {
	fields []Codec
}

func NewFrame(fields ...Codec) *Frame {
	return &Frame{fields: append([]Codec(nil), fields...)}
}

// Arity is the number of positional fields.
func (f *Frame) Arity() int {
	return len(f.fields)
}

func (f *Frame) Encode(v any, buf *buffer.Buffer) error {
	values, ok := v.([]any)
	if !ok {
		return fmt.Errorf("%w: frame got %T", ErrValueType, v)
	}
	if len(values) != len(f.fields) {
		return fmt.Errorf("%w: %d values for %d codecs", ErrFrameArity, len(values), len(f.fields))
	}
	for i, field := range f.fields {
		if err := field.Encode(values[i], buf); err != nil {
			return fmt.Errorf("frame[%d]: %w", i, err)
		}
	}
	return nil
}

// Decode is all-or-nothing: a partial frame is never surfaced.
func (f *Frame) Decode(buf *buffer.Buffer) (any, bool, error) {
	at := buf.Snapshot()
	out := make([]any, 0, len(f.fields))
	for i, field := range f.fields {
		v, ok, err := field.Decode(buf)
		if err != nil {
			_ = buf.Restore(at)
			return nil, false, fmt.Errorf("frame[%d]: %w", i, err)
		}
		if !ok {
			_ = buf.Restore(at)
			return nil, false, nil
		}
		out = append(out, v)
	}
	return out, true, nil
}
