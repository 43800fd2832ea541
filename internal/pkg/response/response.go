package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error writes the flat error body every endpoint shares:
// {"error": "<CODE>", "message": "<text>"}.
func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"error":   code,
		"message": message,
	})
}

// ErrorWithDetails is Error plus a "details" object, used for per-field
// validation failures.
func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"error":   code,
		"message": message,
		"details": details,
	})
}

// Flag answers with an error body that also carries a boolean marker such as
// {"invalid": true} or {"expired": true}.
func Flag(c *gin.Context, statusCode int, code, message, flag string) {
	c.JSON(statusCode, gin.H{
		"error":   code,
		"message": message,
		flag:      true,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

func Internal(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
