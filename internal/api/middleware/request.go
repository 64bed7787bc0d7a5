package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/draftbench/livebuild/internal/shared/id"
)

// HeaderRequestID carries the request ID to and from clients.
const HeaderRequestID = "X-Request-ID"

// ContextRequestID is the gin context key holding the request's ID.
const ContextRequestID = "requestID"

// RequestID tags every request with a unique req_* ID, honoring one supplied
// by the client, and echoes it in the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = id.NewRequestID().String()
		}
		c.Set(ContextRequestID, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}
