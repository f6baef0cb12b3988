package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PublisherMetrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Latency   prometheus.Histogram
}

// NewPublisherMetrics registers the publisher collectors on reg. A nil reg
// leaves them unregistered.
func NewPublisherMetrics(reg prometheus.Registerer, streamName string) *PublisherMetrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"stream": streamName}

	return &PublisherMetrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_publisher_messages_published_total",
			Help:        "Total number of messages appended to the stream",
			ConstLabels: labels,
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_publisher_append_failures_total",
			Help:        "Total number of failed appends",
			ConstLabels: labels,
		}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "streams_publisher_append_latency_seconds",
			Help:        "Histogram of append round-trip time",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}
}
