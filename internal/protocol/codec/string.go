package codec

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// DefaultMaxLength bounds variable-length payloads when no limit is given.
const DefaultMaxLength = 8 * 1024 * 1024

// StringOptions selects exactly one of Prefix or Delimiter.
type StringOptions struct {
	// Prefix encodes the byte length ahead of the text.
	Prefix Codec
	// Delimiter terminates the text on the wire.
	Delimiter []byte
	// Encoding is an IANA charset name. Empty means UTF-8.
	Encoding string
	// MaxLength caps the encoded text size. Zero means DefaultMaxLength.
	MaxLength int
}

// NewString builds a length-prefixed or delimiter-terminated string codec.
func NewString(opts StringOptions) (Codec, error) {
	if (opts.Prefix == nil) == (len(opts.Delimiter) == 0) {
		return nil, fmt.Errorf("%w: string needs exactly one of prefix or delimiter", ErrInvalidOptions)
	}
	if opts.MaxLength < 0 {
		return nil, fmt.Errorf("%w: negative max length", ErrInvalidOptions)
	}
	text, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	limit := opts.MaxLength
	if limit == 0 {
		limit = DefaultMaxLength
	}
	if opts.Prefix != nil {
		return prefixedString{prefix: opts.Prefix, text: text, limit: limit}, nil
	}
	delim := append([]byte(nil), opts.Delimiter...)
	return delimitedString{delim: delim, text: text, limit: limit}, nil
}

// MustString is NewString for package-level declarations.
func MustString(opts StringOptions) Codec {
	c, err := NewString(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// textCodec converts between Go strings and wire bytes. A nil enc is UTF-8
// passthrough.
type textCodec struct {
	enc encoding.Encoding
}

func lookupEncoding(name string) (textCodec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return textCodec{}, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return textCodec{}, fmt.Errorf("%w: text encoding %q: %v", ErrInvalidOptions, name, err)
	}
	if enc == nil {
		return textCodec{}, fmt.Errorf("%w: text encoding %q unsupported", ErrInvalidOptions, name)
	}
	return textCodec{enc: enc}, nil
}

func (t textCodec) toWire(s string) ([]byte, error) {
	if t.enc == nil {
		return []byte(s), nil
	}
	out, err := t.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTextEncoding, err)
	}
	return out, nil
}

func (t textCodec) fromWire(p []byte) (string, error) {
	if t.enc == nil {
		return string(p), nil
	}
	out, err := t.enc.NewDecoder().Bytes(p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTextEncoding, err)
	}
	return string(out), nil
}

func asText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case *string:
		if x == nil {
			return "", nil
		}
		return *x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("%w: string codec got %T", ErrValueType, v)
	}
}

type prefixedString struct {
	prefix Codec
	text   textCodec
	limit  int
}

func (c prefixedString) Encode(v any, buf *buffer.Buffer) error {
	s, err := asText(v)
	if err != nil {
		return err
	}
	p, err := c.text.toWire(s)
	if err != nil {
		return err
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

func (c prefixedString) Decode(buf *buffer.Buffer) (any, bool, error) {
	p, ok, err := readPrefixed(buf, c.prefix, c.limit)
	if !ok || err != nil {
		return nil, false, err
	}
	s, err := c.text.fromWire(p)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// readPrefixed consumes a length prefix and that many bytes, returning a
// view into buf. The read cursor is restored unless it succeeds.
func readPrefixed(buf *buffer.Buffer, prefix Codec, limit int) ([]byte, bool, error) {
	at := buf.Snapshot()
	raw, ok, err := prefix.Decode(buf)
	if err != nil || !ok {
		_ = buf.Restore(at)
		return nil, false, err
	}
	n, err := Length(raw)
	if err != nil {
		_ = buf.Restore(at)
		return nil, false, err
	}
	if n > limit {
		_ = buf.Restore(at)
		return nil, false, fmt.Errorf("%w: %d > %d", ErrLengthExceeded, n, limit)
	}
	p, ok := buf.Next(n)
	if !ok {
		_ = buf.Restore(at)
		return nil, false, nil
	}
	return p, true, nil
}

type delimitedString struct {
	delim []byte
	text  textCodec
	limit int
}

func (c delimitedString) Encode(v any, buf *buffer.Buffer) error {
	s, err := asText(v)
	if err != nil {
		return err
	}
	p, err := c.text.toWire(s)
	if err != nil {
		return err
	}
	if len(p) > c.limit {
		return fmt.Errorf("%w: %d > %d", ErrLengthExceeded, len(p), c.limit)
	}
	if bytes.Contains(p, c.delim) {
		return ErrDelimiterInText
	}
	_, _ = buf.Write(p)
	_, _ = buf.Write(c.delim)
	return nil
}

func (c delimitedString) Decode(buf *buffer.Buffer) (any, bool, error) {
	window := buf.Bytes()
	idx := bytes.Index(window, c.delim)
	if idx < 0 {
		if len(window) > c.limit+len(c.delim) {
			return nil, false, fmt.Errorf("%w: %d bytes scanned", ErrDelimiterNotFound, len(window))
		}
		return nil, false, nil
	}
	if idx > c.limit {
		return nil, false, fmt.Errorf("%w: %d > %d", ErrLengthExceeded, idx, c.limit)
	}
	s, err := c.text.fromWire(window[:idx])
	if err != nil {
		return nil, false, err
	}
	buf.Skip(idx + len(c.delim))
	return s, true, nil
}
