package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AbortWithUnauthorized sends a 401 Unauthorized response and aborts the request.
func AbortWithUnauthorized(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusUnauthorized, true, NewAPIError(message, details))
}

// Unauthorized sends a 401 Unauthorized response without aborting.
func Unauthorized(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusUnauthorized, false, NewAPIError(message, details))
}

// NotFound sends a 404 Not Found response without aborting.
func NotFound(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusNotFound, false, NewAPIError(message, details))
}

// Conflict sends a 409. Used when the requested dates are already taken.
func Conflict(c *gin.Context, code, message string, details map[string]interface{}) {
	respond(c, http.StatusConflict, false, NewAPIError(message, details).WithCode(code))
}

// Internal sends a 500 Internal Server Error response without aborting.
func Internal(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusInternalServerError, false, NewAPIError(message, details))
}

// BadGateway is used when an upstream provider (Stripe, Smoobu) failed.
func BadGateway(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadGateway, false, NewAPIError(message, details))
}
