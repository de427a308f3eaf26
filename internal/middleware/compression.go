package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // responses smaller than this are sent as is
	CompressionLevel int      // gzip level, 1-9
	ContentTypes     []string // content type prefixes eligible for compression
	ExcludedPaths    []string // path prefixes never compressed
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
		ExcludedPaths: []string{"/swagger/"},
	}
}

// CompressionMiddleware gzips eligible gin responses
type CompressionMiddleware struct {
	config CompressionConfig
	pool   sync.Pool

	compressed   atomic.Int64
	uncompressed atomic.Int64
	bytesIn      atomic.Int64
	bytesOut     atomic.Int64
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level != gzip.DefaultCompression && (level < gzip.BestSpeed || level > gzip.BestCompression) {
		config.CompressionLevel = gzip.DefaultCompression
	}
	cm := &CompressionMiddleware{config: config}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, cm.config.CompressionLevel)
		return gz
	}
	return cm
}

// Handler returns the gin middleware. The response is buffered so the size
// threshold and content type can be checked before anything is sent.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsGzip(c.Request) || cm.excluded(c.Request.URL.Path) {
			c.Next()
			return
		}

		bw := &bufferedWriter{ResponseWriter: c.Writer, status: c.Writer.Status()}
		c.Writer = bw
		// on panic the buffered body is dropped and recovery writes to the real writer
		defer func() { c.Writer = bw.ResponseWriter }()
		c.Next()
		c.Writer = bw.ResponseWriter

		cm.flush(bw)
	}
}

func (cm *CompressionMiddleware) flush(bw *bufferedWriter) {
	w := bw.ResponseWriter
	body := bw.buf.Bytes()

	if len(body) == 0 {
		if bw.wroteHeader {
			w.WriteHeader(bw.status)
			w.WriteHeaderNow()
		}
		return
	}

	if len(body) < cm.config.MinSize || !cm.shouldCompress(w.Header().Get("Content-Type")) ||
		w.Header().Get("Content-Encoding") != "" {
		cm.uncompressed.Add(1)
		w.WriteHeader(bw.status)
		_, _ = w.Write(body)
		return
	}

	var out bytes.Buffer
	gz := cm.pool.Get().(*gzip.Writer)
	gz.Reset(&out)
	_, _ = gz.Write(body)
	_ = gz.Close()
	cm.pool.Put(gz)

	cm.compressed.Add(1)
	cm.bytesIn.Add(int64(len(body)))
	cm.bytesOut.Add(int64(out.Len()))

	h := w.Header()
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	h.Set("Content-Length", strconv.Itoa(out.Len()))
	w.WriteHeader(bw.status)
	_, _ = w.Write(out.Bytes())
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (cm *CompressionMiddleware) excluded(path string) bool {
	for _, prefix := range cm.config.ExcludedPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	in, out := cm.bytesIn.Load(), cm.bytesOut.Load()
	ratio := 0.0
	if in > 0 {
		ratio = float64(out) / float64(in)
	}
	return map[string]interface{}{
		"compressed":        cm.compressed.Load(),
		"uncompressed":      cm.uncompressed.Load(),
		"bytes_in":          in,
		"bytes_out":         out,
		"compression_ratio": ratio,
	}
}

// bufferedWriter holds the body and status until the handler chain returns
type bufferedWriter struct {
	gin.ResponseWriter
	buf         bytes.Buffer
	status      int
	wroteHeader bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 {
		w.status = code
		w.wroteHeader = true
	}
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.buf.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.buf.WriteString(s)
}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.buf.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.wroteHeader || w.buf.Len() > 0
}
