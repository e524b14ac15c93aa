package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fadmann/chat/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user set by middleware.Auth.
func currentUserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
}

// credentialFromRequest reads a socket credential from the `token` or
// `access_token` query parameter, falling back to a bearer header.
func credentialFromRequest(c *gin.Context) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	if token := strings.TrimSpace(c.Query("access_token")); token != "" {
		return token
	}
	token, _ := middleware.BearerToken(c.GetHeader("Authorization"))
	return token
}
