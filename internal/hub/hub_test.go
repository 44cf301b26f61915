package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockguard/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newHubServer 起一个只做注册的 WebSocket 端点，把注册成功的 Client 送出来。
func newHubServer(t *testing.T, h *Hub) (*httptest.Server, chan *Client) {
	t.Helper()
	registered := make(chan *Client, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.Register(conn)
		registered <- c
		defer h.Unregister(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, registered
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func TestBroadcastFanOut(t *testing.T) {
	h := New(time.Hour)
	srv, _ := newHubServer(t, h)

	conns := []*websocket.Conn{dialWS(t, srv), dialWS(t, srv), dialWS(t, srv)}
	require.Eventually(t, func() bool { return h.ClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	h.Broadcast(NewProductDeleted(42))

	for _, conn := range conns {
		var env ProductDeletedEnvelope
		require.NoError(t, json.Unmarshal(readRaw(t, conn), &env))
		require.Equal(t, TypeProductDeleted, env.Type)
		require.Equal(t, uint(42), env.ProductID)
	}
}

func TestBroadcastSurvivesDeadClient(t *testing.T) {
	h := New(time.Hour)
	srv, _ := newHubServer(t, h)

	dead := dialWS(t, srv)
	alive := dialWS(t, srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, dead.Close())

	// 死连接要被隐式注销，且不影响存活连接收到消息。
	require.Eventually(t, func() bool {
		h.Broadcast(NewProductDeleted(7))
		return h.ClientCount() == 1
	}, 2*time.Second, 50*time.Millisecond)

	var env ProductDeletedEnvelope
	require.NoError(t, json.Unmarshal(readRaw(t, alive), &env))
	require.Equal(t, TypeProductDeleted, env.Type)
}

func TestUnregisterIdempotent(t *testing.T) {
	h := New(time.Hour)
	srv, registered := newHubServer(t, h)

	dialWS(t, srv)
	var c *Client
	select {
	case c = <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("client not registered")
	}
	require.Equal(t, 1, h.ClientCount())

	h.Unregister(c)
	require.Equal(t, 0, h.ClientCount())
	h.Unregister(c)
	require.Equal(t, 0, h.ClientCount())
}

func TestBroadcastOrderPerClient(t *testing.T) {
	h := New(time.Hour)
	srv, _ := newHubServer(t, h)

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 1; i <= 5; i++ {
		h.Broadcast(NewProductDeleted(uint(i)))
	}
	for i := 1; i <= 5; i++ {
		var env ProductDeletedEnvelope
		require.NoError(t, json.Unmarshal(readRaw(t, conn), &env))
		require.Equal(t, uint(i), env.ProductID)
	}
}

func TestRunBroadcastsStatusHeartbeat(t *testing.T) {
	h := New(50 * time.Millisecond)
	srv, _ := newHubServer(t, h)

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	var env StatusEnvelope
	require.NoError(t, json.Unmarshal(readRaw(t, conn), &env))
	require.Equal(t, TypeStatus, env.Type)
	require.Equal(t, StatusLabel, env.Status)
	require.Equal(t, 1, env.ConnectedClients)
	_, err := time.Parse(time.RFC3339, env.Timestamp)
	require.NoError(t, err)
}

func TestLowStockAlertEnvelope(t *testing.T) {
	p := model.Product{Name: "Widget", Quantity: 3, LowStockThreshold: 5}
	env := NewLowStockAlert(p)
	require.Equal(t, TypeAlert, env.Type)
	require.Equal(t, "Widget", env.Product)
	require.Contains(t, env.Message, "Widget")
}
