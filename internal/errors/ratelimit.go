package errors

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// RateLimitError represents a standardized 429 Too Many Requests response.
type RateLimitError struct {
	Error             string `json:"error"`
	Scope             string `json:"scope"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// AbortWithRateLimit sends a 429 response with the RateLimitError and aborts the request.
func AbortWithRateLimit(c *gin.Context, err *RateLimitError) {
	if err.RetryAfterSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(err.RetryAfterSeconds))
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, err)
}

// TooManyRequests builds the error for a limiter scope such as "contact" or "otp".
func TooManyRequests(scope string, retryAfterSeconds int) *RateLimitError {
	return &RateLimitError{
		Error:             "too many requests",
		Scope:             scope,
		RetryAfterSeconds: retryAfterSeconds,
	}
}
