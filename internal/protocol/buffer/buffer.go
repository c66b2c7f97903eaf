// Package buffer owns the growable byte region shared by codecs and stream decoders.
//
// A Buffer has independent read and write cursors. Bytes before the read
// cursor are consumed; bytes between the read and write cursors are pending.
// Compact discards consumed bytes and never touches pending ones.
package buffer

import (
	"errors"
	"io"
)

var ErrInvalidCursor = errors.New("buffer: invalid cursor")

// Cursor is a saved read position. It is valid until the next Compact.
type Cursor int

// Buffer is not safe for concurrent use.
type Buffer struct {
	data []byte
	r    int
	mark int
}

// New returns an empty buffer with size bytes preallocated.
func New(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]byte, 0, size)}
}

// From returns a buffer whose pending bytes are a copy of p.
func From(p []byte) *Buffer {
	b := New(len(p))
	b.data = append(b.data, p...)
	return b
}

// Write appends p at the write cursor. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	b.data = append(b.data, c)
	return nil
}

func (b *Buffer) WriteString(s string) (int, error) {
	b.data = append(b.data, s...)
	return len(s), nil
}

// Readable reports the number of pending bytes.
func (b *Buffer) Readable() int {
	return len(b.data) - b.r
}

// Len reports the number of bytes held, consumed or not.
func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Bytes returns the pending bytes without consuming them. The slice aliases
// the buffer and is valid until the next write or Compact.
func (b *Buffer) Bytes() []byte {
	return b.data[b.r:]
}

// Peek returns the pending byte at offset from the read cursor.
func (b *Buffer) Peek(offset int) (byte, bool) {
	if offset < 0 || offset >= b.Readable() {
		return 0, false
	}
	return b.data[b.r+offset], true
}

// Next consumes n bytes and returns them as a view into the buffer.
// It returns false and consumes nothing when fewer than n bytes are pending.
func (b *Buffer) Next(n int) ([]byte, bool) {
	if n < 0 || n > b.Readable() {
		return nil, false
	}
	p := b.data[b.r : b.r+n : b.r+n]
	b.r += n
	return p, true
}

// ReadN consumes n bytes and returns a copy of them.
func (b *Buffer) ReadN(n int) ([]byte, bool) {
	p, ok := b.Next(n)
	if !ok {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, p)
	return out, true
}

// Read implements io.Reader over the pending bytes.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Readable() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.data[b.r:])
	b.r += n
	return n, nil
}

// Skip consumes up to n bytes and reports how many were consumed.
func (b *Buffer) Skip(n int) int {
	if n > b.Readable() {
		n = b.Readable()
	}
	if n < 0 {
		return 0
	}
	b.r += n
	return n
}

// Snapshot captures the read cursor.
func (b *Buffer) Snapshot() Cursor {
	return Cursor(b.r)
}

// Restore moves the read cursor back to a snapshot taken since the last Compact.
func (b *Buffer) Restore(c Cursor) error {
	if int(c) < 0 || int(c) > len(b.data) {
		return ErrInvalidCursor
	}
	b.r = int(c)
	return nil
}

// Mark records the read cursor for a later Rewind.
func (b *Buffer) Mark() {
	b.mark = b.r
}

// Rewind moves the read cursor back to the last Mark.
func (b *Buffer) Rewind() {
	if b.mark > len(b.data) {
		b.mark = b.r
		return
	}
	b.r = b.mark
}

// Compact discards consumed bytes and moves pending bytes to offset 0.
// Marks and cursors taken before Compact are reset to the new read position.
func (b *Buffer) Compact() {
	if b.r == 0 {
		b.mark = 0
		return
	}
	n := copy(b.data, b.data[b.r:])
	b.data = b.data[:n]
	b.r = 0
	b.mark = 0
}

// Reset drops all bytes, consumed and pending.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.r = 0
	b.mark = 0
}
