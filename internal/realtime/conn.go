package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// WebSocket close codes used by the chat server.
const (
	CloseNormal         = 1000
	CloseGoingAway      = 1001 // server shutdown
	CloseDeliveryFailed = 1011
	CloseAuthFailed     = 4001
	CloseSuperseded     = 4002
)

// ErrConnClosed is returned when sending to a connection that has already been closed.
var ErrConnClosed = errors.New("realtime: connection closed")

// Identity is the authenticated principal behind a connection.
type Identity struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, falling back to the username.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}

// Peer is the transport end of a connection.
type Peer interface {
	// Send delivers one encoded event, giving up when ctx is done.
	Send(ctx context.Context, payload []byte) error
	// Close terminates the transport with a WebSocket close status.
	Close(code int, reason string) error
}

// Conn binds one authenticated identity to one room over one peer.
type Conn struct {
	id       string
	identity Identity
	roomID   string
	peer     Peer

	closeOnce sync.Once
	closed    chan struct{}
	closeCode int
}

// NewConn creates a connection for identity in roomID.
func NewConn(identity Identity, roomID string, peer Peer) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		identity: identity,
		roomID:   roomID,
		peer:     peer,
		closed:   make(chan struct{}),
	}
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) Identity() Identity    { return c.identity }
func (c *Conn) RoomID() string        { return c.roomID }
func (c *Conn) Done() <-chan struct{} { return c.closed }

// Send writes an encoded event to the peer.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	return c.peer.Send(ctx, payload)
}

// Close closes the peer with code. Only the first call has an effect; it
// reports whether this call performed the close.
func (c *Conn) Close(code int, reason string) bool {
	closedNow := false
	c.closeOnce.Do(func() {
		closedNow = true
		c.closeCode = code
		close(c.closed)
		_ = c.peer.Close(code, reason)
	})
	return closedNow
}

// CloseCode returns the status the connection was closed with, or 0 while open.
func (c *Conn) CloseCode() int {
	select {
	case <-c.closed:
		return c.closeCode
	default:
		return 0
	}
}
