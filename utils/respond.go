package utils

import "github.com/gin-gonic/gin"

// RespondWithError aborts the request with a JSON error body.
func RespondWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// RespondWithCode aborts with a machine-readable code next to the message.
// Keys in extra are merged into the body.
func RespondWithCode(c *gin.Context, status int, code, message string, extra gin.H) {
	body := gin.H{"error": message, "code": code}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
