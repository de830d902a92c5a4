package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds producer and consumer collectors.
type Metrics struct {
	published  *prometheus.CounterVec
	pubBytes   *prometheus.CounterVec
	pubLatency *prometheus.HistogramVec
	handled    *prometheus.CounterVec
	handleTime *prometheus.HistogramVec
	queueDepth prometheus.Gauge
}

// NewMetrics registers kafka collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bankstats_kafka_published_total",
			Help: "Messages published to Kafka",
		}, []string{"topic", "result"}),
		pubBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bankstats_kafka_published_bytes_total",
			Help: "Payload bytes published to Kafka",
		}, []string{"topic"}),
		pubLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bankstats_kafka_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bankstats_kafka_handled_total",
			Help: "Consumed messages by outcome",
		}, []string{"topic", "result"}),
		handleTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bankstats_kafka_handle_seconds",
			Help:    "Handling time per consumed message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "bankstats_kafka_consumer_queue_depth",
			Help: "Messages fetched but not yet handled",
		}),
	}
}

func (m *Metrics) observePublish(topic string, bytes int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Inc()
	m.pubBytes.WithLabelValues(topic).Add(float64(bytes))
	m.pubLatency.WithLabelValues(topic).Observe(dur.Seconds())
}

func (m *Metrics) observeHandle(topic, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(topic, result).Inc()
	m.handleTime.WithLabelValues(topic).Observe(dur.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
