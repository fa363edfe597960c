package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// SCOPE_REQ_ID - Request id set on every request for log correlation.
	SCOPE_REQ_ID = "reqId"
)

// RequestScope stamps a request id into the gin context.
func RequestScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(SCOPE_REQ_ID, uuid.New().String())
		c.Next()
	}
}

// GetReqID returns the scoped request id, empty string if unset.
func GetReqID(c *gin.Context) string {
	value, exists := c.Get(SCOPE_REQ_ID)
	if !exists {
		return ""
	}
	reqID, ok := value.(string)
	if !ok {
		log.Error("Invalid type for request id on scope.")
		return ""
	}
	return reqID
}
