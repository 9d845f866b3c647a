package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// WithCode sets a machine-readable code so clients can branch without parsing messages.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

func respond(c *gin.Context, status int, abort bool, body *APIError) {
	if abort {
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.JSON(status, body)
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadRequest, true, NewAPIError(message, details))
}

// BadRequest sends a 400 Bad Request response without aborting.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	respond(c, http.StatusBadRequest, false, NewAPIError(message, details))
}

// Unprocessable sends a 422 for requests that parse but break a booking rule
// (minimum stay, closed dates, capacity).
func Unprocessable(c *gin.Context, code, message string, details map[string]interface{}) {
	respond(c, http.StatusUnprocessableEntity, false, NewAPIError(message, details).WithCode(code))
}
