package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fadmann/chat/pkg/logger"
	"github.com/fadmann/chat/pkg/metrics"
)

const (
	// DefaultWriteTimeout bounds a single peer send during fan-out.
	DefaultWriteTimeout = 2 * time.Second
	// DefaultTypingTTL is how long a typing=true state lives without a refresh.
	DefaultTypingTTL = 6 * time.Second
)

// Option customises a Registry.
type Option func(*Registry)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithTypingTTL overrides DefaultTypingTTL.
func WithTypingTTL(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.typingTTL = d
		}
	}
}

// WithClock injects the time source used for typing expiry and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIdentityReleased registers a callback invoked when an identity's last
// connection across all rooms is deregistered.
func WithIdentityReleased(fn func(identityID string)) Option {
	return func(r *Registry) {
		r.released = fn
	}
}

// Registry tracks which connections are live in which room and fans events
// out to them. The registry lock guards only the room map; membership and
// delivery are serialized per room.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	closing bool

	idMu       sync.Mutex
	identities map[string]int

	writeTimeout time.Duration
	typingTTL    time.Duration
	now          func() time.Time
	released     func(identityID string)
	log          *zap.Logger
}

type room struct {
	id string

	mu      sync.Mutex
	members map[string]*Conn // identity id -> conn
	typing  map[string]typingState
	removed bool

	// deliver keeps broadcast order equal to delivery order.
	deliver sync.Mutex
}

type typingState struct {
	identity  Identity
	expiresAt time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:        make(map[string]*room),
		identities:   make(map[string]int),
		writeTimeout: DefaultWriteTimeout,
		typingTTL:    DefaultTypingTTL,
		now:          time.Now,
		log:          logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds conn to roomID. An existing connection for the same identity
// in that room is closed with CloseSuperseded and replaced; peers are told
// about the identity only when it was not already present. Once CloseAll has
// run, conn is closed with CloseGoingAway instead and Register returns false.
func (r *Registry) Register(ctx context.Context, roomID string, conn *Conn) bool {
	identity := conn.Identity()
	r.retainIdentity(identity.ID)

	var (
		previous *Conn
		count    int
	)
	for {
		rm := r.roomFor(roomID)
		if rm == nil {
			conn.Close(CloseGoingAway, "server shutdown")
			r.releaseIdentity(identity.ID)
			return false
		}
		rm.mu.Lock()
		if rm.removed {
			rm.mu.Unlock()
			continue
		}
		previous = rm.members[identity.ID]
		rm.members[identity.ID] = conn
		count = len(rm.members)
		rm.mu.Unlock()
		break
	}

	if previous != nil {
		r.releaseIdentity(identity.ID)
		if previous != conn {
			previous.Close(CloseSuperseded, "superseded by a newer connection")
			metrics.Supersessions.Inc()
			r.log.Info("connection superseded",
				zap.String("room_id", roomID),
				zap.String("user_id", identity.ID),
				zap.String("old_conn_id", previous.ID()),
				zap.String("conn_id", conn.ID()),
			)
		}
		return true
	}

	metrics.ActiveConnections.Inc()
	r.Broadcast(ctx, roomID, UserJoinedEvent{
		RoomID:      roomID,
		UserID:      identity.ID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		OnlineCount: count,
		Timestamp:   r.now().UTC(),
	}, conn)
	return true
}

// Deregister removes conn if it is still the registered connection for its
// identity. It is idempotent and reports whether anything was removed.
func (r *Registry) Deregister(ctx context.Context, conn *Conn) bool {
	roomID := conn.RoomID()
	identity := conn.Identity()

	rm := r.lookup(roomID)
	if rm == nil {
		return false
	}

	rm.mu.Lock()
	current, ok := rm.members[identity.ID]
	if !ok || current != conn {
		rm.mu.Unlock()
		return false
	}
	delete(rm.members, identity.ID)
	delete(rm.typing, identity.ID)
	remaining := len(rm.members)
	rm.mu.Unlock()

	metrics.ActiveConnections.Dec()
	r.releaseIdentity(identity.ID)

	if remaining == 0 {
		r.dropIfEmpty(rm)
		return true
	}

	r.Broadcast(ctx, roomID, UserLeftEvent{
		RoomID:      roomID,
		UserID:      identity.ID,
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		OnlineCount: remaining,
		Timestamp:   r.now().UTC(),
	}, nil)
	return true
}

// Broadcast delivers ev to every connection in roomID except exclude and
// returns how many peers accepted it. Peers whose send fails are closed and
// deregistered once the fan-out has finished.
func (r *Registry) Broadcast(ctx context.Context, roomID string, ev Event, exclude *Conn) int {
	payload, err := Encode(ev)
	if err != nil {
		r.log.Error("encode event", zap.String("type", string(ev.EventType())), zap.Error(err))
		return 0
	}

	rm := r.lookup(roomID)
	if rm == nil {
		return 0
	}

	start := time.Now()
	delivered, failed := r.fanOut(ctx, rm, payload, exclude)
	metrics.BroadcastLatency.WithLabelValues(string(ev.EventType())).Observe(time.Since(start).Seconds())

	for _, conn := range failed {
		metrics.DeliveryFailures.Inc()
		r.log.Warn("dropping unreachable peer",
			zap.String("room_id", roomID),
			zap.String("conn_id", conn.ID()),
			zap.String("user_id", conn.Identity().ID),
		)
		conn.Close(CloseDeliveryFailed, "delivery failed")
		r.Deregister(ctx, conn)
	}
	return delivered
}

func (r *Registry) fanOut(ctx context.Context, rm *room, payload []byte, exclude *Conn) (int, []*Conn) {
	rm.deliver.Lock()
	defer rm.deliver.Unlock()

	rm.mu.Lock()
	targets := make([]*Conn, 0, len(rm.members))
	for _, conn := range rm.members {
		if conn != exclude {
			targets = append(targets, conn)
		}
	}
	rm.mu.Unlock()

	if len(targets) == 0 {
		return 0, nil
	}

	results := make([]error, len(targets))
	var g errgroup.Group
	for i, conn := range targets {
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
			defer cancel()
			results[i] = conn.Send(sendCtx, payload)
			return nil
		})
	}
	_ = g.Wait()

	var failed []*Conn
	for i, err := range results {
		if err != nil {
			failed = append(failed, targets[i])
		}
	}
	return len(targets) - len(failed), failed
}

// SendTo delivers ev to a single connection, bounded by the write timeout.
func (r *Registry) SendTo(ctx context.Context, conn *Conn, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	return conn.Send(sendCtx, payload)
}

// OnlineCount returns the number of live connections in roomID. The value is
// approximate while registrations are in flight.
func (r *Registry) OnlineCount(roomID string) int {
	rm := r.lookup(roomID)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Members returns the identities connected to roomID ordered by username.
func (r *Registry) Members(roomID string) []Identity {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	out := make([]Identity, 0, len(rm.members))
	for _, conn := range rm.members {
		out = append(out, conn.Identity())
	}
	rm.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// IsCurrent reports whether conn is the registered connection for its identity.
func (r *Registry) IsCurrent(conn *Conn) bool {
	rm := r.lookup(conn.RoomID())
	if rm == nil {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.members[conn.Identity().ID] == conn
}

// IdentityConnections returns how many rooms identityID is connected to.
func (r *Registry) IdentityConnections(identityID string) int {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return r.identities[identityID]
}

// SetTyping records the typing state of conn's identity and reports whether it changed.
func (r *Registry) SetTyping(conn *Conn, isTyping bool) bool {
	rm := r.lookup(conn.RoomID())
	if rm == nil {
		return false
	}
	identity := conn.Identity()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.members[identity.ID] != conn {
		return false
	}

	_, wasTyping := rm.typing[identity.ID]
	if !isTyping {
		delete(rm.typing, identity.ID)
		return wasTyping
	}
	rm.typing[identity.ID] = typingState{identity: identity, expiresAt: r.now().Add(r.typingTTL)}
	return !wasTyping
}

// Typing returns the identities currently typing in roomID.
func (r *Registry) Typing(roomID string) []Identity {
	rm := r.lookup(roomID)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	out := make([]Identity, 0, len(rm.typing))
	for _, state := range rm.typing {
		out = append(out, state.identity)
	}
	rm.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// SweepTyping clears typing states that expired before now and broadcasts
// is_typing=false for each. It returns the number of states cleared.
func (r *Registry) SweepTyping(ctx context.Context, now time.Time) int {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	cleared := 0
	for _, rm := range rooms {
		var expired []Identity
		rm.mu.Lock()
		for id, state := range rm.typing {
			if !state.expiresAt.After(now) {
				expired = append(expired, state.identity)
				delete(rm.typing, id)
			}
		}
		rm.mu.Unlock()

		for _, identity := range expired {
			r.Broadcast(ctx, rm.id, TypingEvent{
				RoomID:      rm.id,
				UserID:      identity.ID,
				Username:    identity.Username,
				DisplayName: identity.DisplayName,
				IsTyping:    false,
			}, nil)
		}
		cleared += len(expired)
	}
	return cleared
}

// CloseAll closes every connection with code and empties the registry
// without emitting user_left events. Used on shutdown; later registrations
// are refused.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	r.closing = true
	rooms := r.rooms
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	closed := 0
	for _, rm := range rooms {
		rm.mu.Lock()
		members := rm.members
		rm.members = make(map[string]*Conn)
		rm.typing = make(map[string]typingState)
		rm.removed = true
		rm.mu.Unlock()

		for _, conn := range members {
			conn.Close(code, reason)
			metrics.ActiveConnections.Dec()
			r.releaseIdentity(conn.Identity().ID)
			closed++
		}
	}
	return closed
}

// RoomCount returns the number of rooms with at least one live connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) lookup(roomID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// roomFor returns the room for roomID, creating it on demand. It returns nil
// once the registry is closing.
func (r *Registry) roomFor(roomID string) *room {
	r.mu.RLock()
	rm, closing := r.rooms[roomID], r.closing
	r.mu.RUnlock()
	if closing {
		return nil
	}
	if rm != nil {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing {
		return nil
	}
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm = &room{
		id:      roomID,
		members: make(map[string]*Conn),
		typing:  make(map[string]typingState),
	}
	r.rooms[roomID] = rm
	return rm
}

// dropIfEmpty forgets rm once it has no members. Lock order is registry then room.
func (r *Registry) dropIfEmpty(rm *room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.members) > 0 || rm.removed {
		return
	}
	rm.removed = true
	if r.rooms[rm.id] == rm {
		delete(r.rooms, rm.id)
	}
}

func (r *Registry) retainIdentity(identityID string) {
	r.idMu.Lock()
	r.identities[identityID]++
	r.idMu.Unlock()
}

func (r *Registry) releaseIdentity(identityID string) {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	n := r.identities[identityID] - 1
	if n > 0 {
		r.identities[identityID] = n
		return
	}
	delete(r.identities, identityID)
	if r.released != nil {
		r.released(identityID)
	}
}
