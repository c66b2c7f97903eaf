package codec

import (
	"fmt"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
)

// Tagged is the value shape of a Header codec: the discriminator and the
// body it selected.
type Tagged struct {
	Tag  any
	Body any
}

// HeaderOptions keys body codecs by discriminator value. Integer keys match
// decoded discriminators regardless of Go integer kind.
type HeaderOptions struct {
	Discriminator Codec
	Bodies        map[any]Codec
}

type header struct {
	discriminator Codec
	bodies        map[any]Codec
}

// NewHeader builds a tagged-union codec.
func NewHeader(opts HeaderOptions) (Codec, error) {
	if opts.Discriminator == nil {
		return nil, fmt.Errorf("%w: header needs a discriminator codec", ErrInvalidOptions)
	}
	if len(opts.Bodies) == 0 {
		return nil, fmt.Errorf("%w: header needs at least one body", ErrInvalidOptions)
	}
	h := header{
		discriminator: opts.Discriminator,
		bodies:        make(map[any]Codec, len(opts.Bodies)),
	}
	for tag, body := range opts.Bodies {
		if body == nil {
			return nil, fmt.Errorf("%w: header body for %v is nil", ErrInvalidOptions, tag)
		}
		// tag is already a map key, so it is hashable
		k, _ := key(tag)
		if _, dup := h.bodies[k]; dup {
			return nil, fmt.Errorf("%w: header tag %v declared twice", ErrInvalidOptions, tag)
		}
		h.bodies[k] = body
	}
	return h, nil
}

// MustHeader is NewHeader for package-level declarations.
func MustHeader(opts HeaderOptions) Codec {
	c, err := NewHeader(opts)
	if err != nil {
		panic(err)
	}
	return c
}

func (h header) Encode(v any, buf *buffer.Buffer) error {
	var t Tagged
	switch x := v.(type) {
	case Tagged:
		t = x
	case *Tagged:
		if x == nil {
			return fmt.Errorf("%w: nil *Tagged", ErrValueType)
		}
		t = *x
	default:
		return fmt.Errorf("%w: header got %T", ErrValueType, v)
	}
	body, ok := h.lookup(t.Tag)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownDiscriminator, t.Tag)
	}
	if err := h.discriminator.Encode(t.Tag, buf); err != nil {
		return err
	}
	return body.Encode(t.Body, buf)
}

func (h header) Decode(buf *buffer.Buffer) (any, bool, error) {
	at := buf.Snapshot()
	tag, ok, err := h.discriminator.Decode(buf)
	if err != nil || !ok {
		_ = buf.Restore(at)
		return nil, false, err
	}
	body, known := h.lookup(tag)
	if !known {
		_ = buf.Restore(at)
		return nil, false, fmt.Errorf("%w: %v", ErrUnknownDiscriminator, tag)
	}
	v, ok, err := body.Decode(buf)
	if err != nil || !ok {
		_ = buf.Restore(at)
		return nil, false, err
	}
	return Tagged{Tag: tag, Body: v}, true, nil
}

// lookup finds the body for tag. Unhashable tags, such as a frame
// discriminator's []any, never match.
func (h header) lookup(tag any) (Codec, bool) {
	k, ok := key(tag)
	if !ok {
		return nil, false
	}
	body, ok := h.bodies[k]
	return body, ok
}
