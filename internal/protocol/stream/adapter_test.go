package stream

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/codec"
	"github.com/danmuck/edgewire/internal/testutil/testlog"
)

func TestAdapterLifecycle(t *testing.T) {
	testlog.Start(t)
	c := testProtocol()
	var got []Message
	a := NewAdapter(c, func(m Message) { got = append(got, m) }, DefaultConfig())

	if err := a.Open(ConnInfo{ID: " c1 ", RemoteAddr: "127.0.0.1:9", Transport: "tcp"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := a.Open(ConnInfo{ID: "c1"}); !errors.Is(err, ErrDuplicateConn) {
		t.Fatalf("expected ErrDuplicateConn, got %v", err)
	}
	if err := a.Open(ConnInfo{ID: "  "}); !errors.Is(err, ErrInvalidConnID) {
		t.Fatalf("expected ErrInvalidConnID, got %v", err)
	}

	raw := encodeAll(t, c, testMessages())
	half := len(raw) / 2
	if err := a.Receive("c1", raw[:half]); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := a.Receive("c1", raw[half:]); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(got) != len(testMessages()) {
		t.Fatalf("expected %d messages, got %d", len(testMessages()), len(got))
	}
	for i, m := range got {
		if m.Conn.ID != "c1" || m.Conn.Transport != "tcp" {
			t.Fatalf("message %d conn=%+v", i, m.Conn)
		}
		if !reflect.DeepEqual(m.Value, testMessages()[i]) {
			t.Fatalf("message %d got=%#v", i, m.Value)
		}
	}

	conns := a.Connections()
	if len(conns) != 1 || conns[0].ID != "c1" || conns[0].Messages != uint64(len(got)) || conns[0].Pending != 0 {
		t.Fatalf("unexpected connections snapshot: %+v", conns)
	}

	a.Close("c1")
	a.Close("c1")
	if err := a.Receive("c1", raw); !errors.Is(err, ErrUnknownConn) {
		t.Fatalf("expected ErrUnknownConn after close, got %v", err)
	}
	if len(a.Connections()) != 0 {
		t.Fatalf("closed connection still listed")
	}
}

func TestAdapterHandlerCanListConnections(t *testing.T) {
	testlog.Start(t)
	c := testProtocol()
	var a *Adapter
	var seen []uint64
	a = NewAdapter(c, func(m Message) {
		for _, status := range a.Connections() {
			if status.ID == m.Conn.ID {
				seen = append(seen, status.Messages)
			}
		}
	}, DefaultConfig())
	if err := a.Open(ConnInfo{ID: "c1"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	raw := encodeAll(t, c, testMessages())
	done := make(chan error, 1)
	go func() { done <- a.Receive("c1", raw) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler calling Connections blocked Receive")
	}
	if len(seen) != len(testMessages()) {
		t.Fatalf("expected %d snapshots, got %d", len(testMessages()), len(seen))
	}
	for i, n := range seen {
		if n != uint64(i+1) {
			t.Fatalf("snapshot %d reported %d messages", i, n)
		}
	}
}

func TestAdapterConnectionsAreIndependent(t *testing.T) {
	testlog.Start(t)
	c := codec.MustString(codec.StringOptions{Delimiter: []byte("\n")})
	byConn := map[string][]any{}
	a := NewAdapter(c, func(m Message) { byConn[m.Conn.ID] = append(byConn[m.Conn.ID], m.Value) }, DefaultConfig())
	for _, id := range []string{"b", "a"} {
		if err := a.Open(ConnInfo{ID: id}); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}

	steps := []struct {
		id    string
		chunk string
	}{
		{"a", "al"},
		{"b", "be"},
		{"a", "pha\nga"},
		{"b", "ta\n"},
		{"a", "mma\n"},
	}
	for _, s := range steps {
		if err := a.Receive(s.id, []byte(s.chunk)); err != nil {
			t.Fatalf("receive %s: %v", s.id, err)
		}
	}
	if !reflect.DeepEqual(byConn["a"], []any{"alpha", "gamma"}) {
		t.Fatalf("conn a got %#v", byConn["a"])
	}
	if !reflect.DeepEqual(byConn["b"], []any{"beta"}) {
		t.Fatalf("conn b got %#v", byConn["b"])
	}
	conns := a.Connections()
	if len(conns) != 2 || conns[0].ID != "a" || conns[1].ID != "b" {
		t.Fatalf("connections not sorted: %+v", conns)
	}
}

func TestAdapterDropsConnectionOnDecodeError(t *testing.T) {
	testlog.Start(t)
	a := NewAdapter(testProtocol(), nil, DefaultConfig())
	if err := a.Open(ConnInfo{ID: "bad"}); err != nil {
		t.Fatalf("open: %v", err)
	}
	err := a.Receive("bad", []byte{0x7F})
	if !errors.Is(err, codec.ErrUnknownEnumValue) {
		t.Fatalf("expected ErrUnknownEnumValue, got %v", err)
	}
	if len(a.Connections()) != 0 {
		t.Fatalf("failed connection should be dropped")
	}
	if err := a.Open(ConnInfo{ID: "bad"}); err != nil {
		t.Fatalf("reopen after failure: %v", err)
	}
}

func TestAdapterEncodeMatchesCodec(t *testing.T) {
	testlog.Start(t)
	c := testProtocol()
	a := NewAdapter(c, nil, DefaultConfig())
	msg := codec.Tagged{Tag: "text", Body: "hi"}
	got, err := a.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want, _ := codec.Encode(c, msg)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("adapter encode got=% x want=% x", got, want)
	}
	w := &recordingWriter{}
	if err := a.Send(w, msg); err != nil || len(w.writes) != 1 {
		t.Fatalf("send err=%v writes=%d", err, len(w.writes))
	}
}
