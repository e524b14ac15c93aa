package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fadmann/chat/internal/handlers/testutil"
)

type healthPayload struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Database string `json:"database"`
}

func TestHealthReportsLiveRooms(t *testing.T) {
	env := testutil.NewEnv(t)
	room := env.Room("General")

	env.MustDial(room.ID, env.Token(env.CreateUser("alice")))
	env.WaitOnline(room.ID, 1)

	for _, path := range []string{"/health", "/api/health"} {
		resp := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

		body := testutil.DecodeResponse(t, resp)
		require.True(t, body.Success)
		var payload healthPayload
		testutil.DecodeInto(t, body.Data, &payload)
		require.Equal(t, "ok", payload.Status)
		require.Equal(t, 1, payload.Rooms)
	}
}

func TestHealthDegradedWhenDatabaseIsDown(t *testing.T) {
	env := testutil.NewEnv(t)

	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	body := testutil.DecodeResponse(t, resp)
	require.False(t, body.Success)
	var payload healthPayload
	testutil.DecodeInto(t, body.Data, &payload)
	require.Equal(t, "degraded", payload.Status)
	require.NotEmpty(t, payload.Database)
}
