package handlers

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"empresa-service/internal/middleware"
	"empresa-service/internal/services"
)

// ErrorResponse sends a standardized error response
// Internal errors are logged but not exposed to clients
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	correlationID := middleware.GetCorrelationID(c)

	// Log internal error details
	if err != nil {
		log.Printf("[ERROR] [%s] %s: %v", correlationID, message, err)
	}

	// Send user-friendly response (don't expose internal errors)
	response := gin.H{
		"success":        false,
		"message":        message,
		"correlation_id": correlationID,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	// Only include error details in development mode
	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}

	c.JSON(statusCode, response)
}

// SuccessResponse sends a standardized success response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := gin.H{
		"success":        true,
		"message":        message,
		"correlation_id": middleware.GetCorrelationID(c),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if data != nil {
		response["data"] = data
	}

	c.JSON(statusCode, response)
}

// ValidationErrorResponse sends the per-field errors of a rejected step
func ValidationErrorResponse(c *gin.Context, fieldErrors []*services.ValidationError) {
	errors := make(map[string]string, len(fieldErrors))
	for _, e := range fieldErrors {
		errors[e.Field] = e.Message
	}

	c.JSON(400, gin.H{
		"success":        false,
		"message":        "Validation failed",
		"errors":         errors,
		"correlation_id": middleware.GetCorrelationID(c),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
