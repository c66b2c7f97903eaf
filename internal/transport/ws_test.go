package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgewire/internal/testutil/testlog"
	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream" + query
	return websocket.DefaultDialer.Dial(url, header)
}

func TestWSHandlerMessagesAreChunks(t *testing.T) {
	testlog.Start(t)
	col := newCollector()
	reg := echoRegistry(col)
	srv := httptest.NewServer(NewWSHandler(WSConfig{}, reg))
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "?conn_id=browser-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, part := range []string{"one\ntw", "o", "\n"} {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(part)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	msgs := col.wait(t, 2)
	if msgs[0].Value != "one" || msgs[1].Value != "two" {
		t.Fatalf("decoded got %q %q", msgs[0].Value, msgs[1].Value)
	}
	if msgs[0].Conn.ID != "browser-1" || msgs[0].Conn.Transport != TransportWebSocket {
		t.Fatalf("unexpected conn info %+v", msgs[0].Conn)
	}

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for _, want := range []string{"ack:one\n", "ack:two\n"} {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if kind != websocket.BinaryMessage || string(data) != want {
			t.Fatalf("reply kind=%d data=%q want %q", kind, data, want)
		}
	}
}

func TestWSHandlerTrimsConnID(t *testing.T) {
	testlog.Start(t)
	col := newCollector()
	reg := echoRegistry(col)
	srv := httptest.NewServer(NewWSHandler(WSConfig{}, reg))
	defer srv.Close()

	for _, tc := range []struct {
		query string
		want  string
	}{
		{query: "?conn_id=%20spaced%09", want: "spaced"},
		{query: "?conn_id=%20%20", want: ""},
	} {
		conn, _, err := dialWS(t, srv, tc.query, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", tc.query, err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte("hi\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		msgs := col.wait(t, 1)
		id := msgs[len(msgs)-1].Conn.ID
		if tc.want != "" && id != tc.want {
			t.Fatalf("%s: conn id got %q want %q", tc.query, id, tc.want)
		}
		if tc.want == "" && (id == "" || strings.TrimSpace(id) != id) {
			t.Fatalf("%s: expected a generated id, got %q", tc.query, id)
		}
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		if _, data, err := conn.ReadMessage(); err != nil || string(data) != "ack:hi\n" {
			t.Fatalf("reply data=%q err=%v", data, err)
		}
		_ = conn.Close()
	}
}

func TestWSHandlerClosesOnDecodeError(t *testing.T) {
	testlog.Start(t)
	reg := echoRegistry(newCollector())
	srv := httptest.NewServer(NewWSHandler(WSConfig{}, reg))
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 100)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInvalidFramePayloadData) {
		t.Fatalf("expected invalid payload close, got %v", err)
	}
}

func TestWSHandlerOriginCheck(t *testing.T) {
	testlog.Start(t)
	reg := echoRegistry(newCollector())
	srv := httptest.NewServer(NewWSHandler(WSConfig{AllowedOrigins: []string{"http://ok.example"}}, reg))
	defer srv.Close()

	_, resp, err := dialWS(t, srv, "", http.Header{"Origin": []string{"http://evil.example"}})
	if err == nil {
		t.Fatalf("expected rejected origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	conn, _, err := dialWS(t, srv, "", http.Header{"Origin": []string{"http://ok.example"}})
	if err != nil {
		t.Fatalf("allowed origin dial: %v", err)
	}
	_ = conn.Close()
}
