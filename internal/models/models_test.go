package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)
}

func TestBaseModelBeforeCreateKeepsExplicitID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel {
			u := &User{}
			return &u.BaseModel
		}},
		{"room", func() *BaseModel {
			r := &Room{}
			return &r.BaseModel
		}},
		{"message", func() *BaseModel {
			m := &Message{}
			return &m.BaseModel
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := tc.model()
			require.NoError(t, base.BeforeCreate(nil))
			require.NotEmpty(t, base.ID)
		})
	}
}

func TestReactionMapGroupsByEmoji(t *testing.T) {
	rows := []MessageReaction{
		{MessageID: "m1", Emoji: "👍", UserID: "u1"},
		{MessageID: "m1", Emoji: "🔥", UserID: "u2"},
		{MessageID: "m1", Emoji: "👍", UserID: "u3"},
	}

	got := ReactionMap(rows)
	require.Equal(t, map[string][]string{
		"👍": {"u1", "u3"},
		"🔥": {"u2"},
	}, got)
	require.Empty(t, ReactionMap(nil))
}
