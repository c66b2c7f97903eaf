package codec

import (
	"fmt"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
)

// BlockOptions configures a length-prefixed opaque byte block.
type BlockOptions struct {
	Prefix Codec
	// MaxLength caps the block size. Zero means DefaultMaxLength.
	MaxLength int
}

type byteBlock struct {
	prefix Codec
	limit  int
}

// NewByteBlock builds a codec for raw bytes preceded by their length.
// Decoded blocks are copies and stay valid after the buffer is compacted.
func NewByteBlock(opts BlockOptions) (Codec, error) {
	if opts.Prefix == nil {
		return nil, fmt.Errorf("%w: byte block needs a prefix codec", ErrInvalidOptions)
	}
	if opts.MaxLength < 0 {
		return nil, fmt.Errorf("%w: negative max length", ErrInvalidOptions)
	}
	limit := opts.MaxLength
	if limit == 0 {
		limit = DefaultMaxLength
	}
	return byteBlock{prefix: opts.Prefix, limit: limit}, nil
}

// MustByteBlock is NewByteBlock for package-level declarations.
func MustByteBlock(opts BlockOptions) Codec {
	c, err := NewByteBlock(opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (c byteBlock) Encode(v any, buf *buffer.Buffer) error {
	var p []byte
	switch x := v.(type) {
	case nil:
	case []byte:
		p = x
	case string:
		p = []byte(x)
	default:
		return fmt.Errorf("%w: byte block got %T", ErrValueType, v)
	}
	if len(p) > c.limit {
		return fmt.Errorf("%w: %d > %d", ErrLengthExceeded, len(p), c.limit)
	}
	if err := c.prefix.Encode(uint64(len(p)), buf); err != nil {
		return err
	}
	_, _ = buf.Write(p)
	return nil
}

func (c byteBlock) Decode(buf *buffer.Buffer) (any, bool, error) {
	p, ok, err := readPrefixed(buf, c.prefix, c.limit)
	if !ok || err != nil {
		return nil, false, err
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out, true, nil
}
