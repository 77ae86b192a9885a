// Package metrics 定义处理服务的Prometheus指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 对话轮次结果
const (
	OutcomeReply         = "reply"          // 模型正常回复
	OutcomeNotUnderstood = "not_understood" // 识别文本过短
	OutcomeFallback      = "fallback"       // 协作服务失败，返回兜底回复
	OutcomeEmpty         = "empty"          // 发送空消息
)

// 协作服务阶段
const (
	StageTranscribe = "transcribe"
	StageDialogue   = "dialogue"
	StageSynthesize = "synthesize"
)

// Metrics 处理服务的全部指标
type Metrics struct {
	// 连接
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected prometheus.Counter
	ActiveSessions      prometheus.Gauge
	SessionDuration     prometheus.Histogram

	// 消息
	MessagesReceived prometheus.Counter
	MessageBytes     *prometheus.HistogramVec

	// 对话
	Turns             *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	CollaboratorError *prometheus.CounterVec
	ModelLockWait     prometheus.Histogram

	// 管理HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New 创建指标并注册到reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_head_connections_accepted_total",
			Help: "Total number of accepted client connections",
		}),
		ConnectionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_head_connections_rejected_total",
			Help: "Total number of connections rejected by the per-IP limiter",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smart_head_active_sessions",
			Help: "Current number of connected clients",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_head_session_duration_seconds",
			Help:    "Lifetime of client connections",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
		}),

		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_head_messages_received_total",
			Help: "Total number of framed audio messages received",
		}),
		MessageBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smart_head_message_size_bytes",
			Help:    "Size of framed message payloads",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10), // 64B to ~16MB
		}, []string{"direction"}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_head_turns_total",
			Help: "Dialogue turns by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smart_head_stage_duration_seconds",
			Help:    "Time spent in each collaborator call",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		CollaboratorError: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_head_collaborator_errors_total",
			Help: "Collaborator failures by stage",
		}, []string{"stage"}),
		ModelLockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_head_model_lock_wait_seconds",
			Help:    "Time spent waiting for the shared model lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_head_http_requests_total",
			Help: "Total number of admin HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smart_head_http_request_duration_seconds",
			Help:    "Admin HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
