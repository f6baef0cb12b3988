package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ConsumerMetrics tracks one delivery loop. Collectors are labelled with the
// stream and group so several consumers can share a registry.
type ConsumerMetrics struct {
	Processed  prometheus.Counter
	Acked      prometheus.Counter
	Claimed    prometheus.Counter
	Malformed  prometheus.Counter
	Empty      prometheus.Counter
	Failed     prometheus.Counter
	ReadErrors prometheus.Counter
	Latency    prometheus.Histogram
}

// NewConsumerMetrics registers the consumer collectors on reg. A nil reg
// leaves them unregistered.
func NewConsumerMetrics(reg prometheus.Registerer, streamName, group, consumer string) *ConsumerMetrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"stream": streamName, "group": group, "consumer": consumer}

	return &ConsumerMetrics{
		Processed: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_messages_processed_total",
			Help:        "Total number of messages handled successfully",
			ConstLabels: labels,
		}),
		Acked: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_messages_acked_total",
			Help:        "Total number of entries acknowledged, including discarded ones",
			ConstLabels: labels,
		}),
		Claimed: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_messages_claimed_total",
			Help:        "Total number of pending entries claimed from other consumers or retried",
			ConstLabels: labels,
		}),
		Malformed: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_messages_malformed_total",
			Help:        "Total number of entries discarded because the payload could not be decoded",
			ConstLabels: labels,
		}),
		Empty: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_messages_empty_total",
			Help:        "Total number of entries discarded because they carried no payload",
			ConstLabels: labels,
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_messages_failed_total",
			Help:        "Total number of entries left pending after a handler error",
			ConstLabels: labels,
		}),
		ReadErrors: f.NewCounter(prometheus.CounterOpts{
			Name:        "streams_consumer_read_errors_total",
			Help:        "Total number of failed broker calls in the delivery loop",
			ConstLabels: labels,
		}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "streams_consumer_process_latency_seconds",
			Help:        "Histogram of per-entry processing time",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}
}
