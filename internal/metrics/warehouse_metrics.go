package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для метки result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// WarehouseMetrics содержит метрики операций склада.
type WarehouseMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	orders     *prometheus.CounterVec
}

// NewWarehouseMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewWarehouseMetrics() *WarehouseMetrics {
	return NewWarehouseMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWarehouseMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewWarehouseMetricsWithRegisterer(registerer prometheus.Registerer) *WarehouseMetrics {
	return &WarehouseMetrics{
		operations: register(registerer, "warehouse_operations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_operations_total",
			Help: "Total number of warehouse operations grouped by operation and result.",
		}, []string{"operation", "result"})),
		duration: register(registerer, "warehouse_operation_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warehouse_operation_duration_seconds",
			Help:    "Duration of warehouse operations in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"operation"})),
		orders: register(registerer, "warehouse_orders_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warehouse_orders_total",
			Help: "Total number of committed orders that reached a status.",
		}, []string{"status"})),
	}
}

// RecordOperation учитывает завершённую операцию и её длительность.
func (m *WarehouseMetrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOrderStatus учитывает переход заказа в статус.
func (m *WarehouseMetrics) RecordOrderStatus(status string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(status).Inc()
}
