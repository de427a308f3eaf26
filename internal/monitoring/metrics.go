package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const responseSampleSize = 1000

// Metrics holds in-process request and domain counters
type Metrics struct {
	requests atomic.Int64
	errors   atomic.Int64

	calculations       atomic.Int64
	calculationErrors  atomic.Int64
	metricRowsWritten  atomic.Int64
	rateLimitIPBlocks  atomic.Int64
	rateLimitFallbacks atomic.Int64
	rateLimitRedisErrs atomic.Int64

	startTime time.Time

	mu             sync.RWMutex
	responseTimes  []time.Duration
	byStatus       map[int]int64
	endpointBlocks map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		responseTimes:  make([]time.Duration, 0, responseSampleSize),
		byStatus:       make(map[int]int64),
		endpointBlocks: make(map[string]int64),
	}
}

// RecordRequest records one completed request
func (m *Metrics) RecordRequest(statusCode int, duration time.Duration) {
	m.requests.Add(1)
	if statusCode >= 400 {
		m.errors.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byStatus[statusCode]++
	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > responseSampleSize {
		m.responseTimes = m.responseTimes[1:]
	}
}

// RecordCalculation records the outcome of a metrics recalculation
func (m *Metrics) RecordCalculation(written int, err error) {
	m.calculations.Add(1)
	if err != nil {
		m.calculationErrors.Add(1)
		return
	}
	m.metricRowsWritten.Add(int64(written))
}

// IncrementRateLimitIPBlock counts a request rejected by the global IP limit
func (m *Metrics) IncrementRateLimitIPBlock() {
	m.rateLimitIPBlocks.Add(1)
}

// IncrementRateLimitEndpoint counts a request rejected by an endpoint limit
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpointBlocks[endpoint]++
}

func (m *Metrics) IncrementRateLimitFallback() {
	m.rateLimitFallbacks.Add(1)
}

func (m *Metrics) IncrementRateLimitRedisError() {
	m.rateLimitRedisErrs.Add(1)
}

// Percentile returns the p-th percentile of the sampled response times
func (m *Metrics) Percentile(p float64) time.Duration {
	m.mu.RLock()
	times := make([]time.Duration, len(m.responseTimes))
	copy(times, m.responseTimes)
	m.mu.RUnlock()

	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	index := int(float64(len(times)-1) * p / 100.0)
	return times[index]
}

// GetStats returns a snapshot suitable for JSON output
func (m *Metrics) GetStats() map[string]interface{} {
	requests := m.requests.Load()
	errs := m.errors.Load()

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errs) / float64(requests) * 100
	}

	m.mu.RLock()
	byStatus := make(map[int]int64, len(m.byStatus))
	for code, n := range m.byStatus {
		byStatus[code] = n
	}
	m.mu.RUnlock()

	return map[string]interface{}{
		"uptime_seconds":           time.Since(m.startTime).Seconds(),
		"total_requests":           requests,
		"error_count":              errs,
		"error_rate_percent":       errorRate,
		"p50_response_time_ms":     float64(m.Percentile(50)) / float64(time.Millisecond),
		"p95_response_time_ms":     float64(m.Percentile(95)) / float64(time.Millisecond),
		"status_code_distribution": byStatus,
		"calculations":             m.calculations.Load(),
		"calculation_errors":       m.calculationErrors.Load(),
		"metric_rows_written":      m.metricRowsWritten.Load(),
		"start_time":               m.startTime.Format(time.RFC3339),
	}
}

// GetRateLimitStats returns rate limiting counters
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.mu.RLock()
	blocks := make(map[string]int64, len(m.endpointBlocks))
	for k, v := range m.endpointBlocks {
		blocks[k] = v
	}
	m.mu.RUnlock()

	return map[string]interface{}{
		"ip_blocks":       m.rateLimitIPBlocks.Load(),
		"redis_errors":    m.rateLimitRedisErrs.Load(),
		"fallback_count":  m.rateLimitFallbacks.Load(),
		"endpoint_blocks": blocks,
	}
}
