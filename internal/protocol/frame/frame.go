package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
	"github.com/danmuck/edgewire/internal/protocol/codec"
)

const (
	FixedHeaderLen uint16 = 32
	FlagHasAuth    uint32 = 0x01
	FlagIsResponse uint32 = 0x02
	FlagIsError    uint32 = 0x04
)

var (
	ErrHeaderLenTooSmall = errors.New("frame: header_len smaller than fixed header")
	ErrHeaderLenMismatch = errors.New("frame: auth present but header_len has no auth bytes")
	ErrPayloadTooLarge   = errors.New("frame: payload too large")
	ErrAuthTooLarge      = errors.New("frame: auth too large")
	ErrBadMagic          = errors.New("frame: unexpected magic")
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType uint32
	Flags       uint32
	PayloadLen  uint64
}

// Envelope is one complete wire message.
type Envelope struct {
	Header  Header
	Auth    []byte
	Payload []byte
}

// Limits constrains envelope decode/encode memory use. A zero Magic accepts
// any magic value.
type Limits struct {
	Magic           uint32
	MaxAuthBytes    uint64
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxAuthBytes:    64 * 1024,
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// fixed is the 32-byte header laid out with the scalar codecs.
var fixed = codec.NewFrame(
	codec.Uint32, // magic
	codec.Uint16, // version
	codec.Uint16, // header_len
	codec.Uint64, // message_id
	codec.Uint32, // message_type
	codec.Uint32, // flags
	codec.Uint64, // payload_len
)

// Codec reads and writes Envelope values against a cumulative buffer. Short
// data is reported as incomplete so it can sit under a stream.Decoder;
// limit violations are errors as soon as the fixed header is readable.
type Codec struct {
	limits Limits
}

func NewCodec(limits Limits) *Codec {
	return &Codec{limits: limits}
}

func (c *Codec) Encode(v any, buf *buffer.Buffer) error {
	var env Envelope
	switch x := v.(type) {
	case Envelope:
		env = x
	case *Envelope:
		if x == nil {
			return fmt.Errorf("%w: nil *Envelope", codec.ErrValueType)
		}
		env = *x
	default:
		return fmt.Errorf("%w: frame got %T", codec.ErrValueType, v)
	}

	authLen := uint64(len(env.Auth))
	payloadLen := uint64(len(env.Payload))
	if authLen > c.limits.MaxAuthBytes || authLen > uint64(^uint16(0)-FixedHeaderLen) {
		return ErrAuthTooLarge
	}
	if payloadLen > c.limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := env.Header
	if c.limits.Magic != 0 && h.Magic == 0 {
		h.Magic = c.limits.Magic
	}
	h.HeaderLen = FixedHeaderLen + uint16(authLen)
	h.PayloadLen = payloadLen
	if authLen > 0 {
		h.Flags |= FlagHasAuth
	} else {
		h.Flags &^= FlagHasAuth
	}

	if err := fixed.Encode(h.fields(), buf); err != nil {
		return err
	}
	_, _ = buf.Write(env.Auth)
	_, _ = buf.Write(env.Payload)
	return nil
}

func (c *Codec) Decode(buf *buffer.Buffer) (any, bool, error) {
	start := buf.Snapshot()
	raw, ok, err := fixed.Decode(buf)
	if err != nil || !ok {
		return nil, false, err
	}
	h := headerFrom(raw.([]any))
	if err := c.check(h); err != nil {
		_ = buf.Restore(start)
		return nil, false, err
	}

	authLen := int(h.HeaderLen - FixedHeaderLen)
	if uint64(buf.Readable()) < uint64(authLen)+h.PayloadLen {
		_ = buf.Restore(start)
		return nil, false, nil
	}
	auth, _ := buf.ReadN(authLen)
	payload, _ := buf.ReadN(int(h.PayloadLen))
	return Envelope{Header: h, Auth: auth, Payload: payload}, true, nil
}

func (c *Codec) check(h Header) error {
	if c.limits.Magic != 0 && h.Magic != c.limits.Magic {
		return fmt.Errorf("%w: 0x%08x", ErrBadMagic, h.Magic)
	}
	if h.HeaderLen < FixedHeaderLen {
		return ErrHeaderLenTooSmall
	}
	authLen := uint64(h.HeaderLen - FixedHeaderLen)
	if h.Flags&FlagHasAuth != 0 && authLen == 0 {
		return ErrHeaderLenMismatch
	}
	if authLen > c.limits.MaxAuthBytes {
		return ErrAuthTooLarge
	}
	if h.PayloadLen > c.limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// EncodeHeader returns the 32 fixed header bytes for h as written.
func EncodeHeader(h Header) []byte {
	buf := buffer.New(int(FixedHeaderLen))
	_ = fixed.Encode(h.fields(), buf)
	return buf.Bytes()
}

func (h Header) fields() []any {
	return []any{h.Magic, h.Version, h.HeaderLen, h.MessageID, h.MessageType, h.Flags, h.PayloadLen}
}

func headerFrom(v []any) Header {
	return Header{
		Magic:       v[0].(uint32),
		Version:     v[1].(uint16),
		HeaderLen:   v[2].(uint16),
		MessageID:   v[3].(uint64),
		MessageType: v[4].(uint32),
		Flags:       v[5].(uint32),
		PayloadLen:  v[6].(uint64),
	}
}
