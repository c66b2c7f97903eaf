package codec

import (
	"fmt"
	"math"
)

// integer is an integer value split into sign and magnitude so that every
// Go integer kind converts without loss.
type integer struct {
	neg bool
	mag uint64
}

func asInteger(v any) (integer, bool) {
	switch x := v.(type) {
	case int:
		return signed(int64(x)), true
	case int8:
		return signed(int64(x)), true
	case int16:
		return signed(int64(x)), true
	case int32:
		return signed(int64(x)), true
	case int64:
		return signed(x), true
	case uint:
		return integer{mag: uint64(x)}, true
	case uint8:
		return integer{mag: uint64(x)}, true
	case uint16:
		return integer{mag: uint64(x)}, true
	case uint32:
		return integer{mag: uint64(x)}, true
	case uint64:
		return integer{mag: x}, true
	case uintptr:
		return integer{mag: uint64(x)}, true
	default:
		return integer{}, false
	}
}

func signed(x int64) integer {
	if x < 0 {
		return integer{neg: true, mag: uint64(-(x + 1)) + 1}
	}
	return integer{mag: uint64(x)}
}

// unsignedIn returns the value when it fits in [0, max].
func (i integer) unsignedIn(max uint64) (uint64, bool) {
	if i.neg || i.mag > max {
		return 0, false
	}
	return i.mag, true
}

// signedIn returns the value when it fits in [-(max+1), max].
func (i integer) signedIn(max uint64) (int64, bool) {
	if i.neg {
		if i.mag > max+1 {
			return 0, false
		}
		return -int64(i.mag-1) - 1, true
	}
	if i.mag > max {
		return 0, false
	}
	return int64(i.mag), true
}

// Length converts a decoded prefix value to a non-negative length.
func Length(v any) (int, error) {
	i, ok := asInteger(v)
	if !ok {
		return 0, fmt.Errorf("%w: length prefix decoded as %T", ErrValueType, v)
	}
	n, ok := i.unsignedIn(math.MaxInt)
	if !ok {
		return 0, fmt.Errorf("%w: length prefix %v", ErrValueRange, v)
	}
	return int(n), nil
}

// key canonicalises scalar values so that map lookups match across Go
// integer kinds: int(1), uint8(1) and int64(1) share a key. ok is false
// when v cannot be used as a map key, such as a decoded frame ([]any).
func key(v any) (any, bool) {
	if i, ok := asInteger(v); ok {
		if i.neg {
			n, _ := i.signedIn(math.MaxInt64)
			return n, true
		}
		return i.mag, true
	}
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case []byte:
		return string(x), true
	}
	return v, hashable(v)
}

// hashable reports whether v can be stored in a map[any]. Comparable
// static types can still hold slices behind interface fields, so the
// check is made on the value.
func hashable(v any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{v: {}}
	return true
}
