package codec

import (
	"fmt"
	"sort"

	"github.com/danmuck/edgewire/internal/protocol/buffer"
)

// EnumOptions maps symbols onto values of an underlying scalar codec.
type EnumOptions struct {
	Underlying Codec
	Members    map[string]any
}

// Enum is a bijective symbol mapping. The inverse is built once at
// construction.
type Enum struct {
	underlying Codec
	forward    map[string]any
	inverse    map[any]string
}

func NewEnum(opts EnumOptions) (*Enum, error) {
	if opts.Underlying == nil {
		return nil, fmt.Errorf("%w: enum needs an underlying codec", ErrInvalidOptions)
	}
	if len(opts.Members) == 0 {
		return nil, fmt.Errorf("%w: enum needs at least one member", ErrInvalidOptions)
	}
	e := &Enum{
		underlying: opts.Underlying,
		forward:    make(map[string]any, len(opts.Members)),
		inverse:    make(map[any]string, len(opts.Members)),
	}
	for _, sym := range sortedSymbols(opts.Members) {
		v := opts.Members[sym]
		k, ok := key(v)
		if !ok {
			return nil, fmt.Errorf("%w: enum member %q has unhashable value %T", ErrInvalidOptions, sym, v)
		}
		if prev, dup := e.inverse[k]; dup {
			return nil, fmt.Errorf("%w: enum members %q and %q share value %v", ErrInvalidOptions, prev, sym, v)
		}
		e.forward[sym] = v
		e.inverse[k] = sym
	}
	return e, nil
}

// MustEnum is NewEnum for package-level declarations.
func MustEnum(opts EnumOptions) *Enum {
	e, err := NewEnum(opts)
	if err != nil {
		panic(err)
	}
	return e
}

// Symbols lists member symbols in sorted order.
func (e *Enum) Symbols() []string {
	return sortedSymbols(e.forward)
}

// Value returns the underlying value for sym.
func (e *Enum) Value(sym string) (any, bool) {
	v, ok := e.forward[sym]
	return v, ok
}

func (e *Enum) Encode(v any, buf *buffer.Buffer) error {
	sym, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: enum got %T", ErrValueType, v)
	}
	raw, ok := e.forward[sym]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, sym)
	}
	return e.underlying.Encode(raw, buf)
}

func (e *Enum) Decode(buf *buffer.Buffer) (any, bool, error) {
	at := buf.Snapshot()
	raw, ok, err := e.underlying.Decode(buf)
	if err != nil || !ok {
		_ = buf.Restore(at)
		return nil, false, err
	}
	k, hashed := key(raw)
	sym, ok := e.inverse[k]
	if !hashed || !ok {
		_ = buf.Restore(at)
		return nil, false, fmt.Errorf("%w: %v", ErrUnknownEnumValue, raw)
	}
	return sym, true, nil
}

func sortedSymbols[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
