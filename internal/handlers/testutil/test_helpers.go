package testutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fadmann/chat/internal/api"
	"github.com/fadmann/chat/internal/app"
	iauth "github.com/fadmann/chat/internal/auth"
	"github.com/fadmann/chat/internal/chat"
	sharedtestutil "github.com/fadmann/chat/internal/database/testutil"
	"github.com/fadmann/chat/internal/models"
	"github.com/fadmann/chat/internal/ratelimit"
	"github.com/fadmann/chat/internal/realtime"
	"github.com/fadmann/chat/internal/services"
	"github.com/fadmann/chat/pkg/response"
)

const jwtSecret = "test-suite-super-secret-key-32-bytes!!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	Config     *app.Config
	Registry   *realtime.Registry
	Limiter    *ratelimit.Limiter
	Controller *chat.Controller

	server *httptest.Server
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithConfig applies fn to the test configuration.
func WithConfig(fn func(*app.Config)) EnvOption {
	return EnvOption(fn)
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Realtime: app.RealtimeConfig{
			WriteTimeout: time.Second,
			TypingTTL:    6 * time.Second,
			RateLimit: app.RateLimitConfig{
				MaxMessages: ratelimit.DefaultMaxMessages,
				Window:      ratelimit.DefaultWindow,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	limiter := ratelimit.New(cfg.Realtime.LimiterConfig())
	registry := realtime.NewRegistry(append(cfg.Realtime.RegistryOptions(), realtime.WithIdentityReleased(limiter.Forget))...)

	store, err := services.NewMessageStore(db)
	require.NoError(t, err)
	verifier, err := iauth.NewTokenVerifier(jwtSvc, db)
	require.NoError(t, err)
	handler, err := chat.NewHandler(registry, limiter, store)
	require.NoError(t, err)
	controller, err := chat.NewController(verifier, registry, handler)
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, api.Realtime{Registry: registry, Controller: controller})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		JWT:        jwtSvc,
		Config:     cfg,
		Registry:   registry,
		Limiter:    limiter,
		Controller: controller,
	}
}

// CreateUser inserts an active user whose display name is derived from username.
func (e *Env) CreateUser(username string) *models.User {
	e.T.Helper()

	user := &models.User{
		Username:    username,
		DisplayName: strings.ToUpper(username[:1]) + username[1:],
		IsActive:    true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Token issues an access token for user.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Username: user.Username})
	require.NoError(e.T, err)
	return token
}

// Room returns the seeded room with the given name.
func (e *Env) Room(name string) *models.Room {
	e.T.Helper()

	var room models.Room
	require.NoError(e.T, e.DB.Where("name = ?", name).First(&room).Error)
	return &room
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Server starts (once) a real HTTP server in front of the router for WebSocket tests.
func (e *Env) Server() *httptest.Server {
	e.T.Helper()

	if e.server == nil {
		e.server = httptest.NewServer(e.Router)
		e.T.Cleanup(func() {
			e.Registry.CloseAll(realtime.CloseGoingAway, "test shutdown")
			e.server.Close()
		})
	}
	return e.server
}

// Dial opens a chat socket for roomID with token passed as a query parameter.
// The handshake response is returned even when the dial fails.
func (e *Env) Dial(roomID, token string) (*Socket, *http.Response, error) {
	e.T.Helper()

	target := "ws" + strings.TrimPrefix(e.Server().URL, "http") + "/ws/rooms/" + url.PathEscape(roomID)
	if token != "" {
		target += "?token=" + url.QueryEscape(token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return nil, resp, err
	}
	socket := &Socket{t: e.T, conn: conn}
	e.T.Cleanup(func() { _ = conn.Close() })
	return socket, resp, nil
}

// MustDial opens a chat socket and fails the test on error.
func (e *Env) MustDial(roomID, token string) *Socket {
	e.T.Helper()

	socket, resp, err := e.Dial(roomID, token)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(e.T, err)
	return socket
}

// Event is a decoded server frame.
type Event map[string]any

// Type returns the event's type tag.
func (ev Event) Type() string {
	value, _ := ev["type"].(string)
	return value
}

// Socket is a test client for the chat WebSocket.
type Socket struct {
	t    *testing.T
	conn *websocket.Conn
}

// Send writes payload as a JSON text frame.
func (s *Socket) Send(payload any) {
	s.t.Helper()
	require.NoError(s.t, s.conn.WriteJSON(payload))
}

// Read returns the next server event, failing after timeout.
func (s *Socket) Read(timeout time.Duration) (Event, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var ev Event
	if err := s.conn.ReadJSON(&ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Expect reads events until one of the given type arrives, discarding others.
func (s *Socket) Expect(eventType string) Event {
	s.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ev, err := s.Read(time.Until(deadline))
		require.NoError(s.t, err, "waiting for %s event", eventType)
		if ev.Type() == eventType {
			return ev
		}
	}
	s.t.Fatalf("timed out waiting for %s event", eventType)
	return nil
}

// CloseCode reads until the server closes the socket and returns the close code.
func (s *Socket) CloseCode() int {
	s.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := s.Read(time.Until(deadline))
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(s.t, errors.As(err, &closeErr), "expected close frame, got %v", err)
		return closeErr.Code
	}
	s.t.Fatal("timed out waiting for close frame")
	return 0
}

// Close sends a normal close frame and closes the connection.
func (s *Socket) Close() {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
}

// WaitOnline blocks until roomID has exactly count registered connections.
func (e *Env) WaitOnline(roomID string, count int) {
	e.T.Helper()
	require.Eventually(e.T, func() bool {
		return e.Registry.OnlineCount(roomID) == count
	}, 2*time.Second, 10*time.Millisecond, "room %s never reached %d connections", roomID, count)
}
