package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
	"github.com/danmuck/edgewire/internal/protocol/codec"
)

var (
	ErrBufferLimit = errors.New("stream: pending bytes exceed buffer limit")
	ErrNoProgress  = errors.New("stream: codec produced a value without consuming bytes")
	ErrClosed      = errors.New("stream: decoder closed")
)

// Config bounds per-connection decode state.
type Config struct {
	// InitialBufferSize is preallocated for each cumulative buffer.
	InitialBufferSize int
	// MaxBufferBytes caps bytes pending decode after each chunk.
	MaxBufferBytes int
	Observer       Observer
}

func DefaultConfig() Config {
	return Config{
		InitialBufferSize: 4 * 1024,
		MaxBufferBytes:    16 * 1024 * 1024,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.InitialBufferSize <= 0 {
		c.InitialBufferSize = def.InitialBufferSize
	}
	if c.MaxBufferBytes <= 0 {
		c.MaxBufferBytes = def.MaxBufferBytes
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return c
}

// Decoder turns a sequence of arbitrarily split chunks into decoded values.
// It owns one cumulative buffer. Once Feed returns an error the decoder is
// failed and every later Feed returns the same error.
type Decoder struct {
	mu    sync.Mutex
	codec codec.Codec
	cfg   Config
	buf   *buffer.Buffer
	err   error

	// pending mirrors buf.Readable() as of the last completed Feed.
	pending atomic.Int64
}

func NewDecoder(c codec.Codec, cfg Config) *Decoder {
	cfg = cfg.WithDefaults()
	return &Decoder{
		codec: c,
		cfg:   cfg,
		buf:   buffer.New(cfg.InitialBufferSize),
	}
}

// Feed appends chunk and emits every value that is now complete, in order.
// Insufficient data is not an error: Feed returns nil and keeps the
// pending bytes for the next chunk.
func (d *Decoder) Feed(chunk []byte, emit func(v any)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	defer func() { d.pending.Store(int64(d.buf.Readable())) }()
	_, _ = d.buf.Write(chunk)
	d.cfg.Observer.Received(len(chunk))

	for d.buf.Readable() > 0 {
		before := d.buf.Readable()
		d.buf.Mark()
		v, ok, err := d.codec.Decode(d.buf)
		if err != nil {
			d.buf.Rewind()
			return d.fail(err)
		}
		if !ok {
			d.buf.Rewind()
			break
		}
		if d.buf.Readable() == before {
			return d.fail(ErrNoProgress)
		}
		d.cfg.Observer.Decoded(1)
		emit(v)
	}
	d.buf.Compact()
	d.cfg.Observer.Pending(d.buf.Readable())

	if d.buf.Readable() > d.cfg.MaxBufferBytes {
		return d.fail(fmt.Errorf("%w: %d > %d", ErrBufferLimit, d.buf.Readable(), d.cfg.MaxBufferBytes))
	}
	return nil
}

// Pending reports bytes held awaiting a complete value. It does not take
// the decoder lock, so it is safe to call while Feed is emitting.
func (d *Decoder) Pending() int {
	return int(d.pending.Load())
}

// Err returns the error that failed the decoder, if any.
func (d *Decoder) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Close releases the cumulative buffer. Later Feeds return ErrClosed.
func (d *Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buf.Reset()
	d.pending.Store(0)
	if d.err == nil {
		d.err = ErrClosed
	}
}

func (d *Decoder) fail(err error) error {
	d.err = err
	d.cfg.Observer.Failed(err)
	return err
}
