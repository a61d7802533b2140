package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	ContextUserID    = "user_id"
	ContextRequestID = "request_id"
)

// Actor records who is calling for audit purposes. Authentication happens at
// the gateway; a missing header leaves the actor empty.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(HeaderUserID)); userID != "" {
			c.Set(ContextUserID, userID)
		}
		c.Next()
	}
}

// ActorID returns the caller set by Actor, or "".
func ActorID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// RequestID propagates X-Request-ID, generating one when absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}
