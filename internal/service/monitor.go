package service

import (
	"sync"
	"time"
)

// Monitor 监控服务，统计结算链路的请求与错误
type Monitor struct {
	mu sync.RWMutex

	// 错误统计
	DBErrors     int64
	MQErrors     int64
	WorkerErrors int64

	// 结算统计
	CheckoutRequests  int64
	CheckoutSuccess   int64
	CheckoutConflicts int64 // 商品被抢走导致的中止

	// 通知 worker 统计
	WorkerProcessed int64
	WorkerFailed    int64

	// 时间统计
	LastDBError      time.Time
	LastMQError      time.Time
	LastCheckoutTime time.Time
	LastWorkerTime   time.Time
}

var globalMonitor = &Monitor{}

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// RecordDBError 记录数据库错误
func (m *Monitor) RecordDBError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBErrors++
	m.LastDBError = time.Now()
}

// RecordMQError 记录MQ错误
func (m *Monitor) RecordMQError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MQErrors++
	m.LastMQError = time.Now()
}

// RecordCheckoutRequest 记录一次结算请求
func (m *Monitor) RecordCheckoutRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckoutRequests++
	m.LastCheckoutTime = time.Now()
}

// RecordCheckoutSuccess 记录结算成功
func (m *Monitor) RecordCheckoutSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckoutSuccess++
}

// RecordCheckoutConflict 记录因商品失效中止的结算
func (m *Monitor) RecordCheckoutConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CheckoutConflicts++
}

// RecordWorkerProcessed 记录通知发送成功
func (m *Monitor) RecordWorkerProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerProcessed++
	m.LastWorkerTime = time.Now()
}

// RecordWorkerFailed 记录通知发送失败
func (m *Monitor) RecordWorkerFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkerFailed++
	m.WorkerErrors++
}

// GetStats 获取统计信息
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	successRate := float64(0)
	if m.CheckoutRequests > 0 {
		successRate = float64(m.CheckoutSuccess) / float64(m.CheckoutRequests) * 100
	}

	workerSuccessRate := float64(0)
	totalWorker := m.WorkerProcessed + m.WorkerFailed
	if totalWorker > 0 {
		workerSuccessRate = float64(m.WorkerProcessed) / float64(totalWorker) * 100
	}

	return map[string]interface{}{
		"errors": map[string]interface{}{
			"db":     m.DBErrors,
			"mq":     m.MQErrors,
			"worker": m.WorkerErrors,
		},
		"checkout": map[string]interface{}{
			"requests":     m.CheckoutRequests,
			"success":      m.CheckoutSuccess,
			"conflicts":    m.CheckoutConflicts,
			"success_rate": successRate,
		},
		"notify_worker": map[string]interface{}{
			"processed":    m.WorkerProcessed,
			"failed":       m.WorkerFailed,
			"success_rate": workerSuccessRate,
		},
		"last_events": map[string]interface{}{
			"db_error":      m.LastDBError,
			"mq_error":      m.LastMQError,
			"last_checkout": m.LastCheckoutTime,
			"last_worker":   m.LastWorkerTime,
		},
	}
}

// Reset 重置统计（用于测试或定期清理）
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBErrors = 0
	m.MQErrors = 0
	m.WorkerErrors = 0
	m.CheckoutRequests = 0
	m.CheckoutSuccess = 0
	m.CheckoutConflicts = 0
	m.WorkerProcessed = 0
	m.WorkerFailed = 0
}
