package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestCredentialFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := map[string]struct {
		target string
		header string
		want   string
	}{
		"token query":        {target: "/ws/rooms/r?token=abc", want: "abc"},
		"access_token query": {target: "/ws/rooms/r?access_token=def", want: "def"},
		"query wins":         {target: "/ws/rooms/r?token=abc", header: "Bearer ghi", want: "abc"},
		"bearer header":      {target: "/ws/rooms/r", header: "Bearer ghi", want: "ghi"},
		"basic header":       {target: "/ws/rooms/r", header: "Basic Zm9v", want: ""},
		"nothing":            {target: "/ws/rooms/r", want: ""},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}
			require.Equal(t, tc.want, credentialFromRequest(c))
		})
	}
}

func TestRequestContextFallsBack(t *testing.T) {
	require.NotNil(t, requestContext(nil))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	require.NotNil(t, requestContext(c))
}

func TestParseIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x", nil)

	value, err := parseIntQuery(c, "limit", 50)
	require.NoError(t, err)
	require.Equal(t, 25, value)

	value, err = parseIntQuery(c, "missing", 50)
	require.NoError(t, err)
	require.Equal(t, 50, value)

	_, err = parseIntQuery(c, "bad", 50)
	require.EqualError(t, err, "bad must be an integer")
}
