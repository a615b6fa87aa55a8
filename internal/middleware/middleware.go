package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"empresa-service/internal/metrics"
)

// Context keys
const (
	CorrelationIDKey = "correlation_id"
)

// CorrelationID middleware generates or extracts a short hex correlation token
// for request tracing. The token is echoed back in the response header so log
// lines, metric events and client reports can be tied together.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = NewCorrelationID()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

// NewCorrelationID returns a 12-character hex token
func NewCorrelationID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unheard of; fall back to a
		// timestamp-derived token rather than aborting the request
		return hex.EncodeToString([]byte(time.Now().Format("150405.000")))[:12]
	}
	return hex.EncodeToString(buf)
}

// GetCorrelationID extracts the correlation id from gin context
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		return id.(string)
	}
	return ""
}

// StructuredLogger middleware logs requests with structured fields
func StructuredLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		metrics.CountHTTPRequest(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()))

		logger.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"status":         c.Writer.Status(),
			"duration_ms":    float64(time.Since(start).Microseconds()) / 1000.0,
			"ip":             c.ClientIP(),
			"correlation_id": GetCorrelationID(c),
		}).Info("request completed")
	}
}

// StaffOnly gates internal endpoints behind a shared staff token. The upstream
// gateway has already authenticated the session and checked the superuser
// flag; this guards direct in-cluster access.
func StaffOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Staff-Token") != token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "staff access required",
			})
			return
		}
		c.Next()
	}
}
