package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fadmann/chat/internal/handlers/testutil"
	"github.com/fadmann/chat/internal/realtime"
)

func TestChatSocketUnknownRoom(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.CreateUser("alice")

	_, resp, err := env.Dial("no-such-room", env.Token(alice))
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatSocketRejectsBadCredential(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")

	for name, token := range map[string]string{
		"missing": "",
		"garbage": "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			socket := env.MustDial(room.ID, token)
			require.Equal(t, realtime.CloseAuthFailed, socket.CloseCode())
			require.Zero(t, env.Registry.OnlineCount(room.ID))
		})
	}
}

func TestChatSocketRejectsInactiveUser(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")
	mallory := env.CreateUser("mallory")
	token := env.Token(mallory)
	require.NoError(t, env.DB.Model(mallory).Update("is_active", false).Error)

	socket := env.MustDial(room.ID, token)
	require.Equal(t, realtime.CloseAuthFailed, socket.CloseCode())
}

func TestChatSocketExchange(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")
	alice := env.CreateUser("alice")
	bob := env.CreateUser("bob")

	aliceSocket := env.MustDial(room.ID, env.Token(alice))
	env.WaitOnline(room.ID, 1)
	bobSocket := env.MustDial(room.ID, env.Token(bob))

	joined := aliceSocket.Expect("user_joined")
	require.Equal(t, bob.ID, joined["user_id"])
	require.Equal(t, "Bob", joined["display_name"])
	require.EqualValues(t, 2, joined["online_count"])

	aliceSocket.Send(map[string]any{"type": "message", "content": "  hello there  "})

	for _, socket := range []*testutil.Socket{aliceSocket, bobSocket} {
		ev := socket.Expect("message")
		msg, ok := ev["message"].(map[string]any)
		require.True(t, ok, "message payload missing: %v", ev)
		require.Equal(t, "hello there", msg["content"])
		require.Equal(t, alice.ID, msg["user_id"])
		require.Equal(t, "alice", msg["username"])
		require.Equal(t, room.ID, msg["room_id"])
		require.Equal(t, map[string]any{}, msg["reactions"])
	}

	bobSocket.Send(map[string]any{"type": "typing", "is_typing": true})
	typing := aliceSocket.Expect("typing")
	require.Equal(t, bob.ID, typing["user_id"])
	require.Equal(t, true, typing["is_typing"])

	bobSocket.Close()
	left := aliceSocket.Expect("user_left")
	require.Equal(t, bob.ID, left["user_id"])
	require.EqualValues(t, 1, left["online_count"])
	env.WaitOnline(room.ID, 1)
}

func TestChatSocketErrorsGoToSender(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")
	alice := env.CreateUser("alice")

	socket := env.MustDial(room.ID, env.Token(alice))
	env.WaitOnline(room.ID, 1)

	socket.Send(map[string]any{"type": "shout", "content": "hi"})
	ev := socket.Expect("error")
	require.Equal(t, "UNKNOWN_EVENT", ev["code"])

	socket.Send(map[string]any{"type": "message", "content": "   "})
	ev = socket.Expect("error")
	require.Equal(t, "EMPTY_MESSAGE", ev["code"])

	socket.Send(map[string]any{"type": "message", "content": "hi", "room_id": "elsewhere"})
	ev = socket.Expect("error")
	require.Equal(t, "ROOM_MISMATCH", ev["code"])

	// The connection survives rejected frames.
	socket.Send(map[string]any{"type": "message", "content": "still here"})
	ev = socket.Expect("message")
	require.Equal(t, "still here", ev["message"].(map[string]any)["content"])
}

func TestChatSocketSupersession(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")
	alice := env.CreateUser("alice")
	bob := env.CreateUser("bob")

	bobSocket := env.MustDial(room.ID, env.Token(bob))
	env.WaitOnline(room.ID, 1)

	first := env.MustDial(room.ID, env.Token(alice))
	bobSocket.Expect("user_joined")
	env.WaitOnline(room.ID, 2)

	second := env.MustDial(room.ID, env.Token(alice))
	require.Equal(t, realtime.CloseSuperseded, first.CloseCode())
	require.Equal(t, 2, env.Registry.OnlineCount(room.ID))

	second.Send(map[string]any{"type": "message", "content": "from the new tab"})

	// Bob sees the message with no join or leave announced for the takeover.
	var seen []string
	for {
		ev, err := bobSocket.Read(2 * time.Second)
		require.NoError(t, err)
		if ev.Type() == "message" {
			require.Equal(t, "from the new tab", ev["message"].(map[string]any)["content"])
			break
		}
		seen = append(seen, ev.Type())
	}
	require.NotContains(t, seen, "user_joined")
	require.NotContains(t, seen, "user_left")
}

func TestChatSocketShutdownClosesGoingAway(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("Study Groups")
	alice := env.CreateUser("alice")

	socket := env.MustDial(room.ID, env.Token(alice))
	env.WaitOnline(room.ID, 1)

	require.Equal(t, 1, env.Registry.CloseAll(realtime.CloseGoingAway, "server shutdown"))
	require.Equal(t, realtime.CloseGoingAway, socket.CloseCode())
	require.Zero(t, env.Registry.OnlineCount(room.ID))
}

func TestChatSocketHistoryAfterReconnect(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")
	alice := env.CreateUser("alice")
	token := env.Token(alice)

	socket := env.MustDial(room.ID, token)
	env.WaitOnline(room.ID, 1)
	socket.Send(map[string]any{"type": "message", "content": "before the drop"})
	socket.Expect("message")
	socket.Close()
	env.WaitOnline(room.ID, 0)

	resp := env.Request(http.MethodGet, "/api/rooms/"+room.ID+"/messages", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var history []realtime.ChatMessage
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &history)
	require.Len(t, history, 1)
	require.Equal(t, "before the drop", history[0].Content)

	// A reconnect starts with a fresh membership.
	env.MustDial(room.ID, token)
	env.WaitOnline(room.ID, 1)
}
