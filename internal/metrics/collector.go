// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 工作流指标
	workflowsRegistered      prometheus.Counter
	workflowExecutionsTotal  *prometheus.CounterVec
	workflowExecutionSeconds *prometheus.HistogramVec

	// 节点指标
	nodeExecutionsTotal  *prometheus.CounterVec
	nodeExecutionSeconds *prometheus.HistogramVec

	// 调用指标
	invocationsTotal     *prometheus.CounterVec
	invocationSeconds    *prometheus.HistogramVec
	invocationsActive    prometheus.Gauge
	invocationRejections *prometheus.CounterVec

	// Hook 指标
	hookEventsDropped prometheus.Counter

	// 存储指标
	storeOperationSeconds *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.workflowsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflows_registered_total",
		Help:      "Total number of registered workflows",
	})

	c.workflowExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_executions_total",
			Help:      "Total number of finished workflow executions",
		},
		[]string{"status"},
	)

	c.workflowExecutionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"status"},
	)

	// 节点指标
	c.nodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"node_type", "status"},
	)

	c.nodeExecutionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)

	// 调用指标
	c.invocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Total number of finished invocations",
		},
		[]string{"status"},
	)

	c.invocationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Invocation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	c.invocationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "invocations_active",
		Help:      "Number of pending or running invocations",
	})

	c.invocationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_rejections_total",
			Help:      "Total number of invocations refused at admission",
		},
		[]string{"reason"},
	)

	// Hook 指标
	c.hookEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_events_dropped_total",
		Help:      "Total number of lifecycle events dropped because the hook buffer was full",
	})

	// 存储指标
	c.storeOperationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)

	return c
}

// =============================================================================
// 📈 记录方法
// =============================================================================

// RecordWorkflowRegistered 记录工作流注册
func (c *Collector) RecordWorkflowRegistered() {
	c.workflowsRegistered.Inc()
}

// RecordWorkflowExecution 记录工作流执行结果
func (c *Collector) RecordWorkflowExecution(status string, duration time.Duration) {
	c.workflowExecutionsTotal.WithLabelValues(status).Inc()
	c.workflowExecutionSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNodeExecution 记录节点执行
func (c *Collector) RecordNodeExecution(nodeType, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeExecutionSeconds.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordInvocation 记录调用结束
func (c *Collector) RecordInvocation(status string, duration time.Duration) {
	c.invocationsTotal.WithLabelValues(status).Inc()
	c.invocationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// SetActiveInvocations 更新活跃调用数
func (c *Collector) SetActiveInvocations(n int) {
	c.invocationsActive.Set(float64(n))
}

// RecordInvocationRejected 记录被拒绝的调用
func (c *Collector) RecordInvocationRejected(reason string) {
	c.invocationRejections.WithLabelValues(reason).Inc()
}

// RecordHookEventDropped 记录被丢弃的 Hook 事件
func (c *Collector) RecordHookEventDropped() {
	c.hookEventsDropped.Inc()
}

// RecordStoreOperation 记录存储操作耗时
func (c *Collector) RecordStoreOperation(backend, operation string, duration time.Duration) {
	c.storeOperationSeconds.WithLabelValues(backend, operation).Observe(duration.Seconds())
}
