package tlv

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/danmuck/edgewire/internal/testutil/testlog"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	testlog.Start(t)
	in := []Field{
		String(1, "intent-1"),
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b, err := EncodeFields(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}
	if len(b) != 2*HeaderLen+len("intent-1")+2 {
		t.Fatalf("unexpected encoded length %d", len(b))
	}
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestEncodeFieldLayout(t *testing.T) {
	testlog.Start(t)
	b, err := EncodeField(Field{ID: 0x0102, Type: TypeString, Value: []byte("hi")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x01, 0x02, TypeString, 0, 0, 0, 2, 'h', 'i'}
	if !bytes.Equal(b, want) {
		t.Fatalf("layout got=% x want=% x", b, want)
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	testlog.Start(t)
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestTypedHelpers(t *testing.T) {
	testlog.Start(t)
	u16, err := Uint(2, TypeU16, 513)
	if err != nil {
		t.Fatalf("uint: %v", err)
	}
	fields := []Field{u16, Bool(3, true), String(4, "edge"), Bytes(5, []byte{9})}
	raw, err := EncodeFields(fields)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeFields(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	f, ok := GetField(out, 2)
	if !ok {
		t.Fatalf("field 2 missing")
	}
	if v, err := AsUint(f); err != nil || v != 513 {
		t.Fatalf("AsUint got=%d err=%v", v, err)
	}
	f, _ = GetField(out, 3)
	if v, err := AsBool(f); err != nil || !v {
		t.Fatalf("AsBool got=%v err=%v", v, err)
	}
	f, _ = GetField(out, 4)
	if v, err := AsString(f); err != nil || v != "edge" {
		t.Fatalf("AsString got=%q err=%v", v, err)
	}
	if _, err := AsString(Field{ID: 5, Type: TypeBytes}); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if _, ok := GetField(out, 77); ok {
		t.Fatalf("unexpected field 77")
	}
}

func TestTypedHelpersRejectBadInput(t *testing.T) {
	testlog.Start(t)
	if _, err := Uint(1, TypeU8, 256); err == nil {
		t.Fatalf("expected out of range error")
	}
	if _, err := Uint(1, TypeString, 1); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if _, err := U32FromBytes([]byte{1, 2}); !errors.Is(err, ErrValueLength) {
		t.Fatalf("expected ErrValueLength, got %v", err)
	}
	if v, err := U32FromBytes([]byte{0, 0, 1, 0}); err != nil || v != 256 {
		t.Fatalf("U32FromBytes got=%d err=%v", v, err)
	}
}

func TestFieldsOverStream(t *testing.T) {
	testlog.Start(t)
	raw, err := EncodeFields([]Field{String(1, "a"), String(2, "bc"), Bytes(3, nil)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d := stream.NewDecoder(Codec, stream.DefaultConfig())
	var ids []uint16
	for _, b := range raw {
		if err := d.Feed([]byte{b}, func(v any) { ids = append(ids, v.(Field).ID) }); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("ids got %v", ids)
	}
}
