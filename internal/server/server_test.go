package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgewire/internal/protocol/codec"
	"github.com/danmuck/edgewire/internal/protocol/stream"
	"github.com/danmuck/edgewire/internal/testutil/testlog"
	"github.com/danmuck/edgewire/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestAdmin(t *testing.T, token string) (*Admin, *transport.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	line := codec.MustString(codec.StringOptions{Delimiter: []byte("\n"), MaxLength: 64})
	reg := transport.NewRegistry(stream.NewAdapter(line, nil, stream.DefaultConfig()))
	ws := transport.NewWSHandler(transport.WSConfig{}, reg)
	cfg := AdminConfig{Name: "edgewire-test", Addr: "127.0.0.1:0", CorsOrigins: []string{"http://console.example"}, Token: token}
	return NewAdmin(cfg, reg, ws), reg
}

type connectionsBody struct {
	Connections []struct {
		ID        string `json:"id"`
		Transport string `json:"transport"`
		Messages  uint64 `json:"messages"`
	} `json:"connections"`
}

func getConnections(t *testing.T, base string) connectionsBody {
	t.Helper()
	resp, err := http.Get(base + "/connections")
	if err != nil {
		t.Fatalf("get connections: %v", err)
	}
	defer resp.Body.Close()
	var body connectionsBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode connections: %v", err)
	}
	return body
}

func TestAdminHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	admin, _ := newTestAdmin(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	admin.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("health body: %v", err)
	}
	if health["status"] != "ok" || health["service"] != "edgewire-test" {
		t.Fatalf("unexpected health %v", health)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id header")
	}

	rec = httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "edgewire_http_requests_total") {
		t.Fatalf("metrics missing http counter: %d", rec.Code)
	}
}

func TestAdminCORSAllowsConfiguredOrigin(t *testing.T) {
	testlog.Start(t)
	admin, _ := newTestAdmin(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://console.example")
	admin.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://console.example" {
		t.Fatalf("allow origin got %q", got)
	}
}

func TestAdminStreamConnectionsAndDisconnect(t *testing.T) {
	testlog.Start(t)
	admin, reg := newTestAdmin(t, "")
	srv := httptest.NewServer(admin.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?conn_id=panel-7"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("hi\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	var body connectionsBody
	for time.Now().Before(deadline) {
		body = getConnections(t, srv.URL)
		if len(body.Connections) == 1 && body.Connections[0].Messages == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(body.Connections) != 1 || body.Connections[0].ID != "panel-7" || body.Connections[0].Transport != transport.TransportWebSocket {
		t.Fatalf("unexpected connections %+v", body)
	}

	del := func() int {
		req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/connections/panel-7", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := del(); code != http.StatusOK {
		t.Fatalf("delete status %d", code)
	}
	for len(reg.IDs()) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(reg.IDs()) != 0 {
		t.Fatalf("connection still registered: %v", reg.IDs())
	}
	if code := del(); code != http.StatusNotFound {
		t.Fatalf("second delete status %d", code)
	}
}

func TestAdminTokenGuardsDisconnect(t *testing.T) {
	testlog.Start(t)
	admin, _ := newTestAdmin(t, "s3cret")

	rec := httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/connections/any", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated delete got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/connections/any", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	admin.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("authenticated delete of unknown conn got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	admin.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("listing should stay open, got %d", rec.Code)
	}
}
