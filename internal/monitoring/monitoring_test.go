package monitoring

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	t.Run("generates when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelDebug)
	metrics := NewMetrics()

	router := gin.New()
	router.Use(RequestID(), MonitoringMiddleware(metrics, logger))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(stderrors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/ok", "/ok", "/fail"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(1), stats["error_count"])
	dist := stats["status_code_distribution"].(map[int]int64)
	assert.Equal(t, int64(2), dist[http.StatusOK])
	assert.Contains(t, buf.String(), `"msg":"API Error"`)
	assert.Contains(t, buf.String(), `"timestamp"`)
}

func TestPercentile(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.Percentile(50))
	for i := 1; i <= 100; i++ {
		m.RecordRequest(http.StatusOK, time.Duration(i)*time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, m.Percentile(50))
	assert.Equal(t, 100*time.Millisecond, m.Percentile(100))
}

func TestRecordCalculation(t *testing.T) {
	m := NewMetrics()
	m.RecordCalculation(4, nil)
	m.RecordCalculation(0, stderrors.New("bad rank"))

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats["calculations"])
	assert.Equal(t, int64(1), stats["calculation_errors"])
	assert.Equal(t, int64(4), stats["metric_rows_written"])
}

func TestSecurityMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	router := gin.New()
	router.Use(SecurityMonitoringMiddleware(NewLoggerTo(&buf, slog.LevelInfo)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name    string
		query   string
		agent   string
		flagged bool
	}{
		{"clean", "search=ana", "Mozilla/5.0", false},
		{"sql injection", "search=1%27%20UNION%20SELECT%20*", "Mozilla/5.0", true},
		{"scanner agent", "", "sqlmap/1.7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			req.Header.Set("User-Agent", tt.agent)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code, "monitoring never blocks")
			assert.Equal(t, tt.flagged, bytes.Contains(buf.Bytes(), []byte("suspicious_activity_detected")))
		})
	}
}
