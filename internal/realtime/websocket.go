package realtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fadmann/chat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultQueueSize = 64
)

// ErrFrameTooLarge is returned by ReadFrame when a client exceeds the frame size limit.
var ErrFrameTooLarge = errors.New("realtime: frame too large")

// NewUpgrader returns a WebSocket upgrader accepting same-origin and loopback
// origins plus any origin listed in allowedOrigins ("*" accepts all).
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "*" {
			allowAll = true
		}
		if host := hostWithoutPort(origin); host != "" {
			allowed[host] = struct{}{}
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			originHost := hostWithoutPort(origin)
			if _, ok := allowed[originHost]; ok {
				return true
			}
			return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
		},
	}
}

// WebSocketPeer adapts a gorilla connection to Peer. Outbound frames go
// through a bounded queue drained by a single writer goroutine that also
// sends keep-alive pings.
type WebSocketPeer struct {
	socket *websocket.Conn
	queue  chan []byte
	closed chan struct{}
	once   sync.Once
	log    *zap.Logger
}

// NewWebSocketPeer wraps socket and starts its writer goroutine.
func NewWebSocketPeer(socket *websocket.Conn) *WebSocketPeer {
	p := &WebSocketPeer{
		socket: socket,
		queue:  make(chan []byte, defaultQueueSize),
		closed: make(chan struct{}),
		log:    logger.WithModule("websocket"),
	}

	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	go p.writeLoop()
	return p
}

// Send queues payload for the writer, waiting until ctx is done when the queue is full.
func (p *WebSocketPeer) Send(ctx context.Context, payload []byte) error {
	select {
	case <-p.closed:
		return ErrConnClosed
	default:
	}

	select {
	case p.queue <- payload:
		return nil
	case <-p.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadFrame blocks until the next data frame arrives.
func (p *WebSocketPeer) ReadFrame() ([]byte, error) {
	for {
		kind, payload, err := p.socket.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, ErrFrameTooLarge
			}
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return payload, nil
	}
}

// Close sends a close frame with code and tears down the socket. Safe to call repeatedly.
func (p *WebSocketPeer) Close(code int, reason string) error {
	var err error
	p.once.Do(func() {
		close(p.closed)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(code, reason)
		if writeErr := p.socket.WriteControl(websocket.CloseMessage, msg, deadline); writeErr != nil &&
			!errors.Is(writeErr, websocket.ErrCloseSent) && !errors.Is(writeErr, net.ErrClosed) {
			p.log.Debug("write close frame", zap.Int("code", code), zap.Error(writeErr))
		}
		err = p.socket.Close()
	})
	return err
}

// IsNormalClose reports whether err is a client close that needs no logging.
func IsNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed)
}

func (p *WebSocketPeer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.closed:
			return
		case payload := <-p.queue:
			_ = p.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				p.log.Debug("write frame", zap.Error(err))
				_ = p.Close(CloseDeliveryFailed, "write failed")
				return
			}
		case <-ticker.C:
			if err := p.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = p.Close(CloseDeliveryFailed, "ping failed")
				return
			}
		}
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.Contains(host, "://") {
		if parsed, err := url.Parse(host); err == nil {
			return hostWithoutPort(parsed.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
