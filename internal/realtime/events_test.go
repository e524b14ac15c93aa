package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type unknownEvent struct{}

func (unknownEvent) EventType() Type { return "bogus" }
func (unknownEvent) isEvent()        {}

func decodeFrame(t *testing.T, ev Event) map[string]any {
	t.Helper()
	payload, err := Encode(ev)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(payload, &out))
	return out
}

func TestEncodeTagsEnvelope(t *testing.T) {
	cases := []Event{
		MessageEvent{},
		TypingEvent{},
		ReactionUpdateEvent{},
		UserJoinedEvent{},
		UserLeftEvent{},
		ErrorEvent{},
	}
	for _, ev := range cases {
		frame := decodeFrame(t, ev)
		require.Equal(t, string(ev.EventType()), frame["type"])
	}
}

func TestEncodeMessageNestsPayload(t *testing.T) {
	parent := "m-0"
	frame := decodeFrame(t, MessageEvent{Message: ChatMessage{
		ID:          "m-1",
		RoomID:      "room-1",
		UserID:      "alice",
		Username:    "alice",
		DisplayName: "Alice",
		Content:     "hello",
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Reactions:   map[string][]string{"🔥": {"bob"}},
		ReplyTo:     &parent,
		ReplyToMessage: &ReplyPreview{
			ID:          parent,
			Content:     "earlier",
			DisplayName: "Bob",
		},
	}})

	msg, ok := frame["message"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "m-1", msg["id"])
	require.Equal(t, "hello", msg["content"])
	require.Equal(t, "m-0", msg["reply_to"])
	preview := msg["reply_to_message"].(map[string]any)
	require.Equal(t, "Bob", preview["display_name"])
	require.Equal(t, []any{"bob"}, msg["reactions"].(map[string]any)["🔥"])
}

func TestEncodeReactionUpdateNeverNull(t *testing.T) {
	frame := decodeFrame(t, ReactionUpdateEvent{MessageID: "m-1"})
	require.Equal(t, map[string]any{}, frame["reactions"])
}

func TestEncodeErrorEvent(t *testing.T) {
	frame := decodeFrame(t, ErrorEvent{Code: "RATE_LIMITED", Message: "slow down"})
	require.Equal(t, map[string]any{"type": "error", "code": "RATE_LIMITED", "message": "slow down"}, frame)
}

func TestEncodeRejectsUnknownEvent(t *testing.T) {
	_, err := Encode(unknownEvent{})
	require.Error(t, err)
}

func TestIdentityName(t *testing.T) {
	require.Equal(t, "Alice", Identity{Username: "alice", DisplayName: "Alice"}.Name())
	require.Equal(t, "alice", Identity{Username: "alice"}.Name())
}
