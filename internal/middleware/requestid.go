package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderXRequestID = "X-Request-ID"
	ContextRequestID = "request_id"
)

// RequestID tags every request with a correlation ID. Analyzer gateways that
// already stamp X-Request-ID keep their ID so a submission can be traced
// from instrument to stored result; everything else gets a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = uuid.New().String()
		}

		c.Set(ContextRequestID, rid)
		c.Header(HeaderXRequestID, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation ID RequestID stored on the context.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
