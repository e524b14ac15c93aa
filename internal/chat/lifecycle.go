package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/fadmann/chat/internal/auth"
	"github.com/fadmann/chat/internal/realtime"
	apperrors "github.com/fadmann/chat/pkg/errors"
	"github.com/fadmann/chat/pkg/logger"
	"github.com/fadmann/chat/pkg/metrics"
)

// State is a connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is an upgraded client socket.
type Transport interface {
	realtime.Peer
	// ReadFrame blocks for the next client frame and fails once the socket is gone.
	ReadFrame() ([]byte, error)
}

// ControllerOption customises a Controller.
type ControllerOption func(*Controller)

// WithStateObserver registers a callback receiving every state transition.
func WithStateObserver(fn func(connID string, state State)) ControllerOption {
	return func(c *Controller) {
		c.observe = fn
	}
}

// Controller drives one connection from upgrade to close.
type Controller struct {
	verifier auth.Verifier
	registry *realtime.Registry
	handler  *Handler
	observe  func(connID string, state State)
	log      *zap.Logger
}

// NewController wires a lifecycle controller.
func NewController(verifier auth.Verifier, registry *realtime.Registry, handler *Handler, opts ...ControllerOption) (*Controller, error) {
	if verifier == nil || registry == nil || handler == nil {
		return nil, errors.New("chat controller: verifier, registry and handler are required")
	}
	c := &Controller{
		verifier: verifier,
		registry: registry,
		handler:  handler,
		log:      logger.WithModule("lifecycle"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type session struct {
	id    string
	state State
	ctrl  *Controller
}

func (s *session) set(state State) {
	s.state = state
	if s.ctrl.observe != nil {
		s.ctrl.observe(s.id, state)
	}
}

// Serve authenticates the transport, registers it in roomID and processes
// frames until the socket closes or ctx is cancelled. It returns
// apperrors.ErrAuthFailed when the credential is rejected.
func (c *Controller) Serve(ctx context.Context, transport Transport, roomID, credential string) error {
	s := &session{ctrl: c}
	s.set(StateConnecting)
	s.set(StateAuthenticating)

	identity, err := c.verifier.Verify(ctx, credential)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		c.log.Info("authentication failed", zap.String("room_id", roomID), zap.Error(err))
		s.set(StateClosing)
		_ = transport.Close(realtime.CloseAuthFailed, "authentication failed")
		s.set(StateClosed)
		return apperrors.ErrAuthFailed.WithInternal(err)
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	conn := realtime.NewConn(identity, roomID, transport)
	s.id = conn.ID()
	log := logger.ForConnection("lifecycle", conn.ID(), roomID, identity.ID)

	// Join and teardown broadcasts reach peers even when ctx is already cancelled.
	detached := context.WithoutCancel(ctx)

	if !c.registry.Register(detached, roomID, conn) {
		s.set(StateClosing)
		s.set(StateClosed)
		log.Info("connection refused during shutdown")
		return nil
	}
	s.set(StateActive)
	log.Info("connection active")

	stop := context.AfterFunc(ctx, func() {
		conn.Close(realtime.CloseGoingAway, "server shutdown")
	})
	defer stop()

	readErr := c.readLoop(ctx, conn, transport)

	s.set(StateClosing)
	conn.Close(realtime.CloseNormal, "")
	c.registry.Deregister(detached, conn)
	s.set(StateClosed)

	switch {
	case readErr == nil, realtime.IsNormalClose(readErr):
		log.Info("connection closed", zap.Int("code", conn.CloseCode()))
	default:
		log.Info("connection dropped", zap.Int("code", conn.CloseCode()), zap.Error(readErr))
	}
	return nil
}

func (c *Controller) readLoop(ctx context.Context, conn *realtime.Conn, transport Transport) error {
	for {
		frame, err := transport.ReadFrame()
		if err != nil {
			return err
		}
		select {
		case <-conn.Done():
			// Closed by supersession, delivery failure or shutdown.
			return nil
		default:
		}
		if len(frame) == 0 {
			continue
		}
		c.handler.Handle(ctx, conn, frame)
	}
}
