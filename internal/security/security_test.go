package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewSecurityMiddlewareFillsDefaults(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{})
	assert.Equal(t, DefaultSecurityConfig(), sm.config)
}

func TestSanitizeSearch(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{MaxSearchLength: 10})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "ana", "ana"},
		{"trims and collapses", "  ana \t maria ", "ana maria"},
		{"strips tags", "<b>ana</b>", "ana"},
		{"control characters", "an\x00a", "an a"},
		{"invalid utf8", "an\xffa", "ana"},
		{"truncates runes", strings.Repeat("é", 12), strings.Repeat("é", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sm.SanitizeSearch(tt.input))
		})
	}
}

func newRouter(sm *SecurityMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(sm.SecurityHeaders, sm.RequestTimeout, sm.ValidateContentType, sm.LimitBody)
	r.POST("/echo", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		deadline, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"has_deadline": ok, "in_future": time.Until(deadline) > 0})
	})
	return r
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(NewSecurityMiddleware(DefaultSecurityConfig()))

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "30", w.Header().Get("X-Timeout"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	assert.JSONEq(t, `{"has_deadline":true,"in_future":true}`, w.Body.String())

	hsts := newRouter(NewSecurityMiddleware(SecurityConfig{EnableHSTS: true}))
	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	hsts.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestValidateContentTypeAndBodyLimit(t *testing.T) {
	r := newRouter(NewSecurityMiddleware(SecurityConfig{MaxBodyBytes: 32}))

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
	}{
		{"json", "application/json; charset=utf-8", `{"a":1}`, http.StatusOK},
		{"xml rejected", "application/xml", `<a/>`, http.StatusUnsupportedMediaType},
		{"declared too large", "application/json", `{"a":"` + strings.Repeat("x", 64) + `"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestLimitBodyStreamed(t *testing.T) {
	r := newRouter(NewSecurityMiddleware(SecurityConfig{MaxBodyBytes: 16}))

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code, "undeclared bodies are cut off while reading")
}
