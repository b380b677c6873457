package metrics

import (
	"sync"
	"time"
)

// Metrics holds in-process counters for the monitoring endpoints. They reset
// with the process; durable per-cycle telemetry lives in the state file.
type Metrics struct {
	mu sync.RWMutex

	CyclesCompleted  int64
	SourcesFailed    int64
	ItemsDelivered   int64
	DeliveryFailures int64
	SummariesSent    int64
	ItemsBuffered    int64

	LastCycleDuration time.Duration
	LastRunTime       time.Time
	LastErrorTime     time.Time
	LastError         string
	IsHealthy         bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) CycleCompleted(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesCompleted++
	m.LastCycleDuration = d
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) AddSourcesFailed(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourcesFailed += int64(n)
}

func (m *Metrics) AddItemsDelivered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsDelivered += int64(n)
}

func (m *Metrics) AddDeliveryFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveryFailures += int64(n)
}

func (m *Metrics) SummarySent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummariesSent++
}

func (m *Metrics) AddItemsBuffered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsBuffered += int64(n)
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"cycles_completed":       m.CyclesCompleted,
		"sources_failed":         m.SourcesFailed,
		"items_delivered":        m.ItemsDelivered,
		"delivery_failures":      m.DeliveryFailures,
		"summaries_sent":         m.SummariesSent,
		"items_buffered":         m.ItemsBuffered,
		"last_cycle_duration_ms": m.LastCycleDuration.Milliseconds(),
		"last_run_time":          m.LastRunTime.Format(time.RFC3339),
		"last_error_time":        m.LastErrorTime.Format(time.RFC3339),
		"last_error":             m.LastError,
		"is_healthy":             m.IsHealthy,
	}
}
