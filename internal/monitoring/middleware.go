package monitoring

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or assigns a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// MonitoringMiddleware records metrics and logs every request
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		requestID := c.GetString("request_id")

		metrics.RecordRequest(status, duration)
		logger.RequestLogger(requestID, method, path, c.ClientIP(), status, duration)

		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, requestID, method, path, status)
		}

		if duration > 5*time.Second {
			logger.Warn("Slow request", "request_id", requestID, "path", path, "duration_ms", duration.Milliseconds())
		}
	}
}

var suspiciousQueryPatterns = []string{
	"union select",
	"union all",
	"drop table",
	"delete from",
	"';--",
	"/*",
}

var suspiciousAgents = []string{
	"sqlmap",
	"nmap",
	"masscan",
	"nikto",
	"gobuster",
	"dirbuster",
}

// SecurityMonitoringMiddleware logs requests that look like probes. It never blocks.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		details := make(map[string]interface{})

		query, err := url.QueryUnescape(c.Request.URL.RawQuery)
		if err != nil {
			query = c.Request.URL.RawQuery
		}
		if containsAny(query, suspiciousQueryPatterns) {
			details["type"] = "potential_sql_injection"
			details["query"] = c.Request.URL.RawQuery
		}
		userAgent := c.GetHeader("User-Agent")
		if containsAny(userAgent, suspiciousAgents) {
			details["type"] = "suspicious_user_agent"
		}

		if len(details) > 0 {
			details["request_id"] = c.GetString("request_id")
			details["path"] = c.Request.URL.Path
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), userAgent, details)
		}

		c.Next()
	}
}

func containsAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
