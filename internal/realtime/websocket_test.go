package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startEchoServer(t *testing.T, peers chan<- *WebSocketPeer) *httptest.Server {
	t.Helper()
	upgrader := NewUpgrader(nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		peer := NewWebSocketPeer(socket)
		peers <- peer
		for {
			frame, err := peer.ReadFrame()
			if err != nil {
				return
			}
			if err := peer.Send(context.Background(), frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := strings.Replace(server.URL, "http", "ws", 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebSocketPeerRoundTrip(t *testing.T) {
	peers := make(chan *WebSocketPeer, 1)
	server := startEchoServer(t, peers)
	client := dial(t, server)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing"}`)))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"typing"}`, string(payload))
}

func TestWebSocketPeerCloseSendsStatus(t *testing.T) {
	peers := make(chan *WebSocketPeer, 1)
	server := startEchoServer(t, peers)
	client := dial(t, server)

	var peer *WebSocketPeer
	select {
	case peer = <-peers:
	case <-time.After(3 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	require.NoError(t, peer.Close(CloseSuperseded, "superseded"))
	require.NoError(t, peer.Close(CloseSuperseded, "again"))
	require.ErrorIs(t, peer.Send(context.Background(), []byte("x")), ErrConnClosed)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := client.ReadMessage()
	require.True(t, websocket.IsCloseError(err, CloseSuperseded), "unexpected error: %v", err)
}

func TestUpgraderOriginPolicy(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://chat.example.com"})

	check := func(origin, host string) bool {
		req := httptest.NewRequest(http.MethodGet, "http://"+host+"/ws", nil)
		req.Host = host
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return upgrader.CheckOrigin(req)
	}

	require.True(t, check("", "api.example.com"))
	require.True(t, check("https://api.example.com", "api.example.com:8080"))
	require.True(t, check("http://localhost:5173", "api.example.com"))
	require.True(t, check("https://chat.example.com", "api.example.com"))
	require.False(t, check("https://evil.example.net", "api.example.com"))

	open := NewUpgrader([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	require.True(t, open.CheckOrigin(req))
}
